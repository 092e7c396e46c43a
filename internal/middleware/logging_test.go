// internal/middleware/logging_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/brew", entry.Data["path"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
}

func TestLogWebSocketDisconnectCarriesError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	LogWebSocketDisconnect(logger, "1.2.3.4:5", "/ws", assert.AnError)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, assert.AnError, entry.Data["error"])
}
