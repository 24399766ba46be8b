// Package ipcrouter correlates outbound requests to worker processes
// over loopback HTTP with a per-request response channel, a
// per-destination circuit breaker, and a per-destination rate limiter.
package ipcrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// RequestTimeout is the overall deadline on a single Send call.
const RequestTimeout = 30 * time.Second

// defaultPorts is the static name-to-port table; names outside it
// route to the default port.
var defaultPorts = map[string]int{
	"ai-engine":       8000,
	"dsl-parser":      8001,
	"graph-engine":    8002,
	"event-processor": 8003,
}

const defaultPort = 8000

// Message is an outbound request envelope.
type Message struct {
	ID        uuid.UUID
	Service   string
	Method    string
	Payload   json.RawMessage
	Timestamp int64
}

// Response is the correlated reply to a Message.
type Response struct {
	RequestID uuid.UUID
	Success   bool
	Data      json.RawMessage
	Error     string
}

// Router forwards Messages to worker processes and correlates replies
// by request id.
type Router struct {
	client *http.Client
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]chan Response

	breakers *sync.Map // name -> *gobreaker.CircuitBreaker[*http.Response]
	limiters *sync.Map // name -> *rate.Limiter
}

// New creates a Router using the given HTTP client for outbound calls.
func New(client *http.Client, log zerolog.Logger) *Router {
	if client == nil {
		client = &http.Client{}
	}
	return &Router{
		client:   client,
		log:      log,
		pending:  make(map[uuid.UUID]chan Response),
		breakers: &sync.Map{},
		limiters: &sync.Map{},
	}
}

func (r *Router) portFor(service string) int {
	if p, ok := defaultPorts[service]; ok {
		return p
	}
	return defaultPort
}

func (r *Router) breakerFor(service string) *gobreaker.CircuitBreaker[*http.Response] {
	if b, ok := r.breakers.Load(service); ok {
		return b.(*gobreaker.CircuitBreaker[*http.Response])
	}
	b := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	actual, _ := r.breakers.LoadOrStore(service, b)
	return actual.(*gobreaker.CircuitBreaker[*http.Response])
}

func (r *Router) limiterFor(service string) *rate.Limiter {
	if l, ok := r.limiters.Load(service); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(50), 50)
	actual, _ := r.limiters.LoadOrStore(service, l)
	return actual.(*rate.Limiter)
}

// Send forwards msg to its target worker and waits for the correlated
// response, or a Timeout/TransportError within RequestTimeout.
func (r *Router) Send(ctx context.Context, msg Message) Response {
	replyCh := make(chan Response, 1)

	r.mu.Lock()
	r.pending[msg.ID] = replyCh
	r.mu.Unlock()

	cleanup := func() {
		r.mu.Lock()
		delete(r.pending, msg.ID)
		r.mu.Unlock()
	}

	go r.forward(ctx, msg, replyCh)

	timeoutCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	select {
	case resp := <-replyCh:
		cleanup()
		return resp
	case <-timeoutCtx.Done():
		cleanup()
		return Response{RequestID: msg.ID, Success: false, Error: "timeout waiting for response"}
	}
}

// forward resolves the destination, applies the rate limiter and
// circuit breaker, performs the HTTP call, and dispatches exactly one
// Response to replyCh.
func (r *Router) forward(ctx context.Context, msg Message, replyCh chan<- Response) {
	limiter := r.limiterFor(msg.Service)
	if err := limiter.Wait(ctx); err != nil {
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: err.Error()})
		return
	}

	body, err := json.Marshal(struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}{ID: msg.ID.String(), Data: msg.Payload})
	if err != nil {
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: err.Error()})
		return
	}

	url := fmt.Sprintf("http://localhost:%d/api/%s", r.portFor(msg.Service), msg.Method)
	breaker := r.breakerFor(msg.Service)

	resp, err := breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return r.client.Do(req)
	})
	if err != nil {
		r.log.Warn().Str("service", msg.Service).Err(err).Msg("ipc forward failed")
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: err.Error()})
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: fmt.Sprintf("non-2xx status: %d", resp.StatusCode)})
		return
	}

	if !json.Valid(data) {
		send(replyCh, Response{RequestID: msg.ID, Success: false, Error: "response body is not valid JSON"})
		return
	}

	send(replyCh, Response{RequestID: msg.ID, Success: true, Data: data})
}

// send is a non-blocking single delivery; replyCh is always buffered
// by one, so this never blocks its caller.
func send(ch chan<- Response, resp Response) {
	select {
	case ch <- resp:
	default:
	}
}
