package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/library-loans-backend/api/responses"
	"github.com/angelmondragon/library-loans-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const (
	envHeader    = "X-Library-Env"
	readyTimeout = 2 * time.Second
)

type Pinger interface {
	Ping(context.Context) error
}

// Dependency is a named backend the readiness probe pings.
type Dependency struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports 503 when any fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(deps))
		)
		g := new(errgroup.Group)
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			dep := dep
			g.Go(func() error {
				status := "ok"
				err := dep.Pinger.Ping(ctx)
				if err != nil {
					status = "unavailable"
				}
				mu.Lock()
				checks[dep.Name] = status
				mu.Unlock()
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.Name+" unavailable")
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			typed := pkgerrors.As(err).WithDetails(map[string]any{"checks": checks})
			responses.WriteError(r.Context(), logg, w, typed)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
