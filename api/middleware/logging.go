package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

// statusRecorder remembers the first status written and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.status = r.code()
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// code is the status the client saw; a handler that wrote nothing sent 200.
func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// probe paths are hit by health checks and scrapers and only log on failure.
func probe(path string) bool {
	return strings.HasPrefix(path, "/health/") || strings.HasPrefix(path, "/metrics")
}

// Logging logs request.start and request.complete. Method and path are put
// on the request context so handler logs carry them too.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			quiet := probe(r.URL.Path)
			ctx := logg.WithFields(r.Context(), logger.Fields{"method": r.Method, "path": r.URL.Path})
			if !quiet {
				logg.Info(ctx, "request.start")
			}

			r = r.WithContext(ctx)
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.code()
			failed := status >= http.StatusInternalServerError
			if quiet && !failed {
				return
			}
			ctx = logg.WithFields(ctx, logger.Fields{
				"route":       routeLabel(r),
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(started).Milliseconds(),
			})
			if failed {
				logg.Warn(ctx, "request.complete")
			} else {
				logg.Info(ctx, "request.complete")
			}
		})
	}
}
