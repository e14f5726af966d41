package resilience

import "sync"

// Registry holds one breaker per named dependency. It is constructed once at
// process start and passed by injection; there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	settings BreakerSettings
	breakers map[string]*Breaker

	onStateChange func(name string, from, to State)
}

// NewRegistry creates a breaker registry with shared settings.
func NewRegistry(settings BreakerSettings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// OnStateChange installs a transition hook applied to every breaker the
// registry creates. Call before first use.
func (r *Registry) OnStateChange(fn func(name string, from, to State)) *Registry {
	r.onStateChange = fn
	return r
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.settings)
	if r.onStateChange != nil {
		b.OnStateChange(r.onStateChange)
	}
	r.breakers[name] = b
	return b
}

// Reset drops all breakers. Test isolation only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*Breaker)
}
