package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("payload"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = 32
	client := NewClient(cfg, logging.NewNopLogger())

	t.Run("returns body", func(t *testing.T) {
		body, err := client.Fetch(context.Background(), server.URL+"/ok")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(body))
	})

	t.Run("rejects non 2xx", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), server.URL+"/missing")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})

	t.Run("enforces size limit", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), server.URL+"/big")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}
