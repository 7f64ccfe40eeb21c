package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "203.0.113.7", IPFromRequest(req))
}

func TestIPFromRequestFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:5123"

	assert.Equal(t, "192.0.2.4", IPFromRequest(req))
}

func TestDeviceIDFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, DeviceIDFromRequest(req))

	req.Header.Set("X-Device-Id", "dev-1")
	assert.Equal(t, "dev-1", DeviceIDFromRequest(req))
}
