package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/library-loans-backend/pkg/config"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv(config.EnvWorkerID, " worker-7 ")
	assert.Equal(t, "worker-7", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv(config.EnvWorkerID, "")
	assert.NotEmpty(t, GetID())
}
