package ipcrouter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellforge/shellcore/internal/ipcrouter"
)

// listenOnPort binds a fixed loopback port so a test server lands where
// the router's static port table expects the service to live.
func listenOnPort(t *testing.T, port int) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Skipf("port %d unavailable in this environment: %v", port, err)
	}
	return lis
}

func TestSendUnreachableServiceTimesOut(t *testing.T) {
	router := ipcrouter.New(&http.Client{Timeout: time.Second}, zerolog.Nop())

	resp := router.Send(context.Background(), ipcrouter.Message{
		ID:        uuid.New(),
		Service:   "ai-engine",
		Method:    "ping",
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().Unix(),
	})

	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestSendSuccessRoundTrip(t *testing.T) {
	lis := listenOnPort(t, 8001) // dsl-parser's static port
	var gotPath string
	srv := &httptest.Server{
		Listener: lis,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		})},
	}
	srv.Start()
	defer srv.Close()

	router := ipcrouter.New(&http.Client{Timeout: time.Second}, zerolog.Nop())

	resp := router.Send(context.Background(), ipcrouter.Message{
		ID:        uuid.New(),
		Service:   "dsl-parser",
		Method:    "parse",
		Payload:   json.RawMessage(`{"source":"x"}`),
		Timestamp: time.Now().Unix(),
	})

	require.True(t, resp.Success)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
	assert.Equal(t, "/api/parse", gotPath)
}

func TestSendNon2xxIsUnsuccessful(t *testing.T) {
	lis := listenOnPort(t, 8002) // graph-engine's static port
	srv := &httptest.Server{
		Listener: lis,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})},
	}
	srv.Start()
	defer srv.Close()

	router := ipcrouter.New(&http.Client{Timeout: time.Second}, zerolog.Nop())

	resp := router.Send(context.Background(), ipcrouter.Message{
		ID:        uuid.New(),
		Service:   "graph-engine",
		Method:    "compile",
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().Unix(),
	})

	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestSendDistinctIDsReceiveOwnResponses(t *testing.T) {
	router := ipcrouter.New(&http.Client{Timeout: time.Second}, zerolog.Nop())

	const n = 10
	results := make(chan ipcrouter.Response, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- router.Send(context.Background(), ipcrouter.Message{
				ID:      uuid.New(),
				Service: "dsl-parser",
				Method:  "ping",
				Payload: json.RawMessage(`{}`),
			})
		}()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		resp := <-results
		assert.False(t, seen[resp.RequestID.String()])
		seen[resp.RequestID.String()] = true
	}
}
