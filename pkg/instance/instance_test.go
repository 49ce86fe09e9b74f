package instance

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestIDPrefersWorkerID(t *testing.T) {
	t.Setenv("WORKER_ID", "worker-7")
	if got := ID("cron"); got != "worker-7" {
		t.Fatalf("expected worker-7, got %s", got)
	}
}

func TestIDFallsBackToRoleHostPid(t *testing.T) {
	t.Setenv("WORKER_ID", "")
	got := ID("outbox")
	if !strings.HasPrefix(got, "outbox-") {
		t.Fatalf("expected role prefix, got %s", got)
	}
	if !strings.HasSuffix(got, fmt.Sprintf("-%d", os.Getpid())) {
		t.Fatalf("expected pid suffix, got %s", got)
	}
}
