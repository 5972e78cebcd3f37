package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/middleware"
)

func echoClient(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(middleware.GetClientID(r.Context())))
}

func TestAPIKeyAuth(t *testing.T) {
	h := middleware.APIKeyAuth(map[string]string{"k1": "clinic-app"})(http.HandlerFunc(echoClient))

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "k1") }, http.StatusOK, "clinic-app"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer k1") }, http.StatusOK, "clinic-app"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=k1" }, http.StatusOK, "clinic-app"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, `{"error":"missing API key"}`},
		{"wrong", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized, `{"error":"invalid API key"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestAPIKeyAuthDisabledWithoutKeys(t *testing.T) {
	h := middleware.APIKeyAuth(nil)(http.HandlerFunc(echoClient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverAnswers500(t *testing.T) {
	h := middleware.Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type observation struct {
	method, route string
	status        int
}

type recordingObserver struct{ got []observation }

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.got = append(o.got, observation{method, route, status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(middleware.Metrics(obs))
	r.Get("/schedules/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/schedules/abc", nil))
	require.Len(t, obs.got, 1)
	assert.Equal(t, observation{http.MethodGet, "/schedules/{id}", http.StatusNotFound}, obs.got[0])
}

func TestWrappedWriterUpgradesWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	h := middleware.Logger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}
