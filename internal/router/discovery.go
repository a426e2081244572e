package router

import "sync"

// StaticDiscovery is a Discovery backed by an operator-supplied, fixed
// instance list per service, refreshable in place (e.g. from a health
// checker goroutine that prunes unhealthy instances). It is the gateway's
// default; a Consul/k8s-backed Discovery can be substituted without
// touching Router.
type StaticDiscovery struct {
	mu        sync.RWMutex
	instances map[string][]string
}

// NewStaticDiscovery builds a Discovery from a fixed service→instances map.
func NewStaticDiscovery(instances map[string][]string) *StaticDiscovery {
	return &StaticDiscovery{instances: instances}
}

func (d *StaticDiscovery) Instances(service string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instances[service]
}

// SetInstances replaces the healthy instance list for service, called by a
// health-check loop as instances come up or go down.
func (d *StaticDiscovery) SetInstances(service string, instances []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instances == nil {
		d.instances = make(map[string][]string)
	}
	d.instances[service] = instances
}
