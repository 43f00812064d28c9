package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainAndCloseRequest(t *testing.T) {
	body := &trackedBody{Reader: strings.NewReader("leftover payload")}
	req := httptest.NewRequest("POST", "/entries", nil)
	req.Body = body

	// handler that never touches the body
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	DrainAndCloseRequest()(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.True(t, body.closed)
	leftover, err := io.ReadAll(body.Reader)
	require.NoError(t, err)
	assert.Empty(t, leftover)
}
