package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/library-loans-backend/pkg/config"
)

// GetID identifies the running worker replica in logs. It prefers
// LIBRARY_WORKER_ID, then the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(config.EnvWorkerID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
