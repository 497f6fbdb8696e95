// Package registry maps logical service names to base network addresses.
//
// The mapping is immutable after load: Resolve is a pure lookup with no
// network calls, and a refresh replaces the whole snapshot atomically so
// concurrent readers never observe a partially-updated registry.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/prilive-com/relay/gw"
)

// ServiceDescriptor identifies one downstream service.
type ServiceDescriptor struct {
	Name    string
	BaseURL string
}

// Registry resolves logical service names. Safe for unsynchronized
// concurrent reads; Replace swaps the snapshot pointer atomically.
type Registry struct {
	snapshot atomic.Pointer[map[string]ServiceDescriptor]
}

// New creates a Registry from a name -> base URL mapping.
func New(services map[string]string) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(services); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromConfig creates a Registry from a loaded Config.
func NewFromConfig(cfg Config) (*Registry, error) {
	return New(cfg.Services)
}

// Resolve returns the descriptor for a logical name. Lookup is
// case-insensitive; descriptors always carry the lowercased name.
func (r *Registry) Resolve(name string) (ServiceDescriptor, error) {
	m := r.snapshot.Load()
	desc, ok := (*m)[strings.ToLower(name)]
	if !ok {
		return ServiceDescriptor{}, &gw.ServiceUnknownError{Name: name}
	}
	return desc, nil
}

// Replace swaps the whole mapping in one step. Used by discovery refreshes;
// in-flight Resolve calls keep reading the previous snapshot.
func (r *Registry) Replace(services map[string]string) error {
	m := make(map[string]ServiceDescriptor, len(services))
	for name, base := range services {
		desc, err := newDescriptor(name, base)
		if err != nil {
			return err
		}
		m[desc.Name] = desc
	}
	r.snapshot.Store(&m)
	return nil
}

// Names returns the registered logical names, sorted.
func (r *Registry) Names() []string {
	m := r.snapshot.Load()
	names := make([]string, 0, len(*m))
	for name := range *m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors in the current snapshot.
func (r *Registry) Descriptors() []ServiceDescriptor {
	m := r.snapshot.Load()
	descs := make([]ServiceDescriptor, 0, len(*m))
	for _, name := range r.Names() {
		descs = append(descs, (*m)[name])
	}
	return descs
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

func newDescriptor(name, base string) (ServiceDescriptor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ServiceDescriptor{}, fmt.Errorf("%w: empty service name", gw.ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return ServiceDescriptor{}, fmt.Errorf("%w: service %q: %v", gw.ErrInvalidConfig, name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ServiceDescriptor{}, fmt.Errorf("%w: service %q: base URL must be http or https", gw.ErrInvalidConfig, name)
	}
	if u.Host == "" {
		return ServiceDescriptor{}, fmt.Errorf("%w: service %q: base URL missing host", gw.ErrInvalidConfig, name)
	}
	return ServiceDescriptor{
		Name:    name,
		BaseURL: strings.TrimRight(u.String(), "/"),
	}, nil
}
