// Package health exposes liveness and readiness state over HTTP.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Status is the health state of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Checker tracks the health of registered components (the catalog store,
// the object-store signer).
type Checker struct {
	mu         sync.RWMutex
	components map[string]Status
}

// NewChecker creates a Checker with no registered components.
func NewChecker() *Checker {
	return &Checker{components: make(map[string]Status)}
}

// Register adds a component with an initial status of down.
func (c *Checker) Register(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = StatusDown
}

// SetStatus updates the health status of a named component.
func (c *Checker) SetStatus(name string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = status
}

type response struct {
	Status     Status            `json:"status"`
	Components map[string]Status `json:"components"`
}

// ServeHTTP responds with the aggregated health status: 200 when every
// component is up, 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	overall := StatusUp
	comps := make(map[string]Status, len(c.components))
	for name, status := range c.components {
		comps[name] = status
		if status == StatusDown {
			overall = StatusDown
		}
	}
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if overall == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response{Status: overall, Components: comps})
}

// ReadinessChecker tracks whether the server is ready to accept traffic.
type ReadinessChecker struct {
	mu    sync.RWMutex
	ready bool
}

// NewReadinessChecker creates a ReadinessChecker in not-ready state.
func NewReadinessChecker() *ReadinessChecker {
	return &ReadinessChecker{}
}

// SetReady updates the readiness state.
func (r *ReadinessChecker) SetReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
}

// ServeHTTP responds 200 when ready, 503 when not.
func (r *ReadinessChecker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	ready := r.ready
	r.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}
