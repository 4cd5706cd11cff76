package catalog

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registry memoizes one client per catalog instance for the process
// lifetime. Clients are created lazily on first use.
type registry struct {
	mu      sync.Mutex
	cfg     Config
	reg     prometheus.Registerer
	metrics *Metrics
	clients map[Instance]*Client
}

var defaultRegistry = &registry{
	reg:     prometheus.DefaultRegisterer,
	clients: make(map[Instance]*Client),
}

// Configure sets the config and registerer used by clients the package
// hands out. It must be called before the first ForInstance call to take
// effect; already-memoized clients are not rebuilt.
func Configure(cfg Config, reg prometheus.Registerer) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.cfg = cfg
	if reg != nil {
		defaultRegistry.reg = reg
	}
}

// ForInstance returns the process-wide client for the given catalog
// instance, creating it on first use.
func ForInstance(instance Instance) (*Client, error) {
	return defaultRegistry.forInstance(instance)
}

func (r *registry) forInstance(instance Instance) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[instance]; ok {
		return client, nil
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(r.reg)
	}
	client, err := NewClient(r.cfg, instance, nil, r.metrics)
	if err != nil {
		return nil, err
	}
	r.clients[instance] = client
	return client, nil
}
