package memcache

import (
	"strconv"
	"strings"

	"github.com/relaycache/memcache/protocol"
)

// ServerEntry is one entry in a server list: an address and its relative
// weight. Higher weight means proportionally more keys land on that
// server once the Selector builds its ring.
type ServerEntry struct {
	Addr   string
	Weight int
}

// Server builds a ServerEntry, defaulting weight to 1 if omitted or <= 0.
// This mirrors spec.md's "server list entry": either a bare identifier
// (weight 1) or an (identifier, weight) pair.
func Server(addr string, weight ...int) ServerEntry {
	w := 1
	if len(weight) > 0 && weight[0] > 0 {
		w = weight[0]
	}
	return ServerEntry{Addr: NormalizeAddr(addr), Weight: w}
}

// Servers builds a weight-1 server list from a set of bare addresses; a
// convenience for the common case of an unweighted cluster.
func Servers(addrs ...string) []ServerEntry {
	entries := make([]ServerEntry, len(addrs))
	for i, addr := range addrs {
		entries[i] = Server(addr)
	}
	return entries
}

// NormalizeAddr appends the default memcached port when addr has none.
func NormalizeAddr(addr string) string {
	if _, _, err := splitHostPort(addr); err == nil {
		return addr
	}
	return addr + ":" + protocol.DefaultPort
}

// splitHostPort is a light stand-in for net.SplitHostPort that only cares
// whether a port is present; it tolerates bare hostnames and IPv6 literals
// well enough to decide whether to append the default port.
func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return "", "", errNoPort
	}
	port = addr[idx+1:]
	if _, convErr := strconv.Atoi(port); convErr != nil {
		return "", "", errNoPort
	}
	return addr[:idx], port, nil
}

var errNoPort = &addrError{"missing port in address"}

type addrError struct{ msg string }

func (e *addrError) Error() string { return e.msg }
