// Package aihook is the client side of the AI endpoint: it posts a prompt to
// the backend and tracks the result, loading and error state of the call.
//
// Each Generate call is tagged with an increasing request id. Starting a new
// call cancels the one in flight, and only the latest call may update state.
package aihook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrRequestFailed is reported for every non-2xx backend response. The
// response body is not inspected.
var ErrRequestFailed = errors.New("Something went wrong") //nolint:staticcheck // shown to users verbatim

// State is a snapshot of the hook.
type State struct {
	Result    any    `json:"result"`
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error"`
}

// Hook issues AI requests against one backend. It is safe for concurrent use.
type Hook struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	state       State
	seq         uint64
	version     uint64
	cancel      context.CancelFunc
	subscribers []*subscription
	nextSub     int
}

// subscription remembers the newest snapshot version it was handed, so a
// snapshot that loses the race to a newer one is never delivered after it.
type subscription struct {
	id   int
	fn   func(State)
	last atomic.Uint64
}

type snapshot struct {
	state   State
	version uint64
}

// Option customizes a Hook.
type Option func(*Hook)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *Hook) { h.httpClient = hc }
}

// WithLogger sets the diagnostic logger failures are written to.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hook) { h.logger = l }
}

// New returns a hook posting to {backendBaseURL}/api/ai.
func New(backendBaseURL string, opts ...Option) *Hook {
	h := &Hook{
		endpoint:   strings.TrimRight(backendBaseURL, "/") + "/api/ai",
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the current state.
func (h *Hook) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Subscribe registers fn to be called with every state change, in
// subscription order. Calls from different Generate calls may overlap, but fn
// never sees a snapshot older than one it has already been given. The
// returned func removes the subscription.
func (h *Hook) Subscribe(fn func(State)) func() {
	h.mu.Lock()
	sub := &subscription{id: h.nextSub, fn: fn}
	h.nextSub++
	h.subscribers = append(h.subscribers, sub)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subscribers {
			if s.id == sub.id {
				h.subscribers = append(h.subscribers[:i:i], h.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Generate posts prompt and blocks until the call settles or is superseded
// by a later call. The outcome is reported through State.
func (h *Hook) Generate(ctx context.Context, prompt string) {
	ctx, cancel, id := h.begin(ctx)
	defer cancel()

	data, err := h.post(ctx, prompt)

	h.mu.Lock()
	if id != h.seq {
		h.mu.Unlock()
		h.logger.Debug("Superseded AI request discarded", "request_id", id)
		return
	}
	h.cancel = nil
	if err != nil {
		h.state.Error = err.Error()
	} else {
		h.state.Result = data
	}
	h.state.IsLoading = false
	snap, subs := h.snapshot(), h.subscriberList()
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("AI request failed", "request_id", id, "error", err)
	}
	notify(subs, snap)
}

// Cancel aborts the call in flight, if any, and clears the loading flag.
func (h *Hook) Cancel() {
	h.mu.Lock()
	if h.cancel == nil {
		h.mu.Unlock()
		return
	}
	h.cancel()
	h.cancel = nil
	h.seq++
	h.state.IsLoading = false
	snap, subs := h.snapshot(), h.subscriberList()
	h.mu.Unlock()

	notify(subs, snap)
}

func (h *Hook) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	ctx, cancel := context.WithCancel(parent)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.seq++
	id := h.seq
	h.cancel = cancel
	h.state.IsLoading = true
	h.state.Error = ""
	snap, subs := h.snapshot(), h.subscriberList()
	h.mu.Unlock()

	notify(subs, snap)
	return ctx, cancel, id
}

func (h *Hook) post(ctx context.Context, prompt string) (any, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrRequestFailed
	}

	var body struct {
		Data any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Data, nil
}

// snapshot must be called with h.mu held.
func (h *Hook) snapshot() snapshot {
	h.version++
	return snapshot{state: h.state, version: h.version}
}

// subscriberList must be called with h.mu held.
func (h *Hook) subscriberList() []*subscription {
	if len(h.subscribers) == 0 {
		return nil
	}
	return append([]*subscription(nil), h.subscribers...)
}

func notify(subs []*subscription, snap snapshot) {
	for _, sub := range subs {
		if sub.claim(snap.version) {
			sub.fn(snap.state)
		}
	}
}

// claim reports whether version is newer than anything sub has been handed
// and records it if so.
func (s *subscription) claim(version uint64) bool {
	for {
		last := s.last.Load()
		if version <= last {
			return false
		}
		if s.last.CompareAndSwap(last, version) {
			return true
		}
	}
}
