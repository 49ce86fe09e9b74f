package instance

import (
	"fmt"
	"os"
	"strings"
)

// ID names the running process for logs and lock ownership. WORKER_ID wins
// when set so orchestrators can pin stable names; otherwise the id is built
// from the role, hostname and pid.
func ID(role string) string {
	if id := strings.TrimSpace(os.Getenv("WORKER_ID")); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	if role == "" {
		role = "gigmarket"
	}
	return fmt.Sprintf("%s-%s-%d", role, host, os.Getpid())
}
