package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFromContext_Default(t *testing.T) {
	require.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	base := newLogger(&buf, Config{Service: "messagely", Format: "json"})

	var seen *slog.Logger
	h := middleware.RequestID(HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	req.Equal(http.StatusTeapot, rr.Code)
	req.NotNil(seen)
	req.NotSame(slog.Default(), seen)

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("http_request", line["msg"])
	req.Equal("messagely", line["service"])
	req.Equal("/healthz", line["path"])
	req.EqualValues(http.StatusTeapot, line["status"])
	req.NotEmpty(line["req_id"])
}
