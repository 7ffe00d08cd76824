package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/desk.report/internal/monitoring"
)

func TestCaptureLogs(t *testing.T) {
	logs := CaptureLogs(t)
	monitoring.Logf("height %.2fm", 0.74)
	monitoring.Tagged("desk")("ready")

	assert.Equal(t, []string{"height 0.74m", "[desk] ready"}, logs.Lines())
}

func TestMuteLogs(t *testing.T) {
	outer := CaptureLogs(t)
	t.Run("muted", func(t *testing.T) {
		MuteLogs(t)
		monitoring.Logf("hidden")
	})
	monitoring.Logf("visible")

	assert.Equal(t, []string{"visible"}, outer.Lines())
}

func TestLocalRequest(t *testing.T) {
	req := LocalRequest(http.MethodGet, "/debug/tail", nil)
	assert.Equal(t, "127.0.0.1:12345", req.RemoteAddr)
	assert.Equal(t, "/debug/tail", req.URL.Path)
}
