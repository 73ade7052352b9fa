// Package peerstats tracks per-peer connection counts for diagnostics. Counts
// expire after a period of inactivity, so a peer that goes quiet starts from
// one on its next connection. Purely observational; nothing in the accept or
// session path depends on it.
package peerstats

import (
	"net"
	"time"

	"github.com/patrickmn/go-cache"
)

// Stats counts accepted connections per remote host with TTL expiry. It is
// safe for concurrent use.
type Stats struct {
	peers *cache.Cache
}

// New creates a Stats whose counters expire after ttl of inactivity and are
// swept every cleanupInterval.
//
// Parameters:
//   - ttl: Inactivity period after which a peer's counter is discarded
//   - cleanupInterval: Interval at which expired counters are removed
//
// Returns:
//   - A new Stats instance
func New(ttl, cleanupInterval time.Duration) *Stats {
	return &Stats{
		peers: cache.New(ttl, cleanupInterval),
	}
}

// Record increments the counter for the peer behind remoteAddr and refreshes
// its TTL. The port part of a "host:port" address is ignored so repeated
// connections from one host aggregate under a single counter.
//
// Parameters:
//   - remoteAddr: The peer's address, with or without a port
//
// Returns:
//   - The updated connection count for the peer
func (s *Stats) Record(remoteAddr string) uint64 {
	host := hostOf(remoteAddr)

	count := uint64(1)
	if v, found := s.peers.Get(host); found {
		count = v.(uint64) + 1
	}

	s.peers.Set(host, count, cache.DefaultExpiration)
	return count
}

// Count returns the current connection count for a host, or zero if the host
// is unknown or its counter has expired.
//
// Parameters:
//   - host: The peer host to look up, with or without a port
//
// Returns:
//   - The peer's connection count
func (s *Stats) Count(host string) uint64 {
	v, found := s.peers.Get(hostOf(host))
	if !found {
		return 0
	}

	return v.(uint64)
}

// ActivePeers returns the number of hosts with a live counter. The count may
// include counters that have expired but not yet been swept.
//
// Returns:
//   - The number of tracked peers
func (s *Stats) ActivePeers() int {
	return s.peers.ItemCount()
}

// hostOf strips the port from a "host:port" address if one is present.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}

	return addr
}
