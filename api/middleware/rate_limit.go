package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/library-loans-backend/api/responses"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy allows Limit requests per client IP in each Window.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

func NewRateLimitPolicy(name string, window time.Duration, limit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "writes"
	}
	return RateLimitPolicy{Name: name, Window: window, Limit: limit}
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && p.Limit > 0
}

// WriteRateLimit throttles POST, PUT, PATCH and DELETE per client IP. Reads
// are never counted. A counter failure answers 503 rather than letting the
// write through unmetered.
func WriteRateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(policy.Window.Seconds()))

	return func(next http.Handler) http.Handler {
		if !policy.active() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions || ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			allowed, seen, err := counter.FixedWindowAllow(ctx, policy.Name+":"+ip, int64(policy.Limit), policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if logg != nil {
				logg.Warn(logg.WithFields(ctx, logger.Fields{
					"policy": policy.Name,
					"ip":     ip,
					"seen":   seen,
					"limit":  policy.Limit,
				}), "rate_limit.blocked")
			}
			w.Header().Set("Retry-After", retryAfter)
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
