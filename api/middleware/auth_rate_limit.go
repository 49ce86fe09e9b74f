package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/gigmarket-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// RateCounter is a fixed-window counter keyed by scope.
type RateCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one auth surface (login, register) by
// client IP and by the email in the request body.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int64
	emailLimit int64
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: int64(ipLimit), emailLimit: int64(emailLimit)}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// rateDimension is one counter checked per request. key returns "" when the
// request carries nothing to count on.
type rateDimension struct {
	name  string
	limit int64
	key   func(r *http.Request, body []byte) string
}

func (p AuthRateLimitPolicy) dimensions() []rateDimension {
	var dims []rateDimension
	if p.ipLimit > 0 {
		dims = append(dims, rateDimension{name: "ip", limit: p.ipLimit, key: func(r *http.Request, _ []byte) string {
			return clientIP(r)
		}})
	}
	if p.emailLimit > 0 {
		dims = append(dims, rateDimension{name: "email", limit: p.emailLimit, key: func(_ *http.Request, body []byte) string {
			if email := emailFromBody(body); email != "" {
				return hashValue(email)
			}
			return ""
		}})
	}
	return dims
}

// AuthRateLimit rejects with 429 and Retry-After once any dimension of the
// policy is over its limit within the window.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		dims := policy.dimensions()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if policy.emailLimit > 0 {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, dim := range dims {
				value := dim.key(r, body)
				if value == "" {
					continue
				}
				allowed, count, err := store.FixedWindowAllow(ctx, "auth:"+policy.name+":"+dim.name+":"+value, dim.limit, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if allowed {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.name,
						"dimension": dim.name,
						"attempts":  count,
						"limit":     dim.limit,
					}), "auth rate limit exceeded")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr, which chi's RealIP has already rewritten from
// the proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
