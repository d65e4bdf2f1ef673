package redpipe

import "errors"

var ErrNoServers = errors.New("redpipe: no servers available")

// Servers provides the current list of server addresses. Implementations
// may be static or backed by service discovery.
type Servers interface {
	List() []string
}

type staticServers struct {
	addresses []string
}

// NewStaticServers returns a fixed server list.
func NewStaticServers(addresses ...string) Servers {
	return &staticServers{addresses: addresses}
}

func (s *staticServers) List() []string {
	return s.addresses
}
