// Package health serves Kubernetes-style liveness and readiness probes.
// Registered checks run on a background ticker; the HTTP endpoints only read
// the cached verdicts, so a slow dependency never slows the probe itself.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	// lastErr is written by the ticker goroutine and read by the HTTP
	// endpoints.
	lastErr atomic.Pointer[error]
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.fn(ctx)
	c.lastErr.Store(&err)
}

func (c *check) failure() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Service tracks liveness and readiness for one process. Readiness combines
// the manual SetReady flag with the registered readiness checks, so flipping
// the flag during shutdown drains traffic regardless of check state.
type Service struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Service in the not-ready state.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a process-level check, for example a goroutine
// leak detector. Register before Start.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, &check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a dependency check, for example database
// connectivity. Register before Start.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, &check{name: name, timeout: timeout, fn: fn})
}

// Start runs every registered check once now and then on the given interval
// until Stop or ctx cancellation.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	checks := make([]*check, 0, len(s.liveness)+len(s.readiness))
	checks = append(checks, s.liveness...)
	checks = append(checks, s.readiness...)
	s.mu.Unlock()

	for _, c := range checks {
		go func(c *check) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop cancels the background check goroutines. Safe to call repeatedly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness flag. Set true after wiring completes
// and false at the start of graceful shutdown.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while every liveness check passes, 503 with
// the failing checks otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.liveness...)
	s.mu.Unlock()
	writeProbe(w, failuresOf(checks))
}

// ReadyEndpoint serves /readyz: 200 only when SetReady(true) was called and
// every readiness check passes.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.readiness...)
	s.mu.Unlock()

	failures := failuresOf(checks)
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeProbe(w, failures)
}

func failuresOf(checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if err := c.failure(); err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
