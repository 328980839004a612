// Package discovery turns peer address sources into dialable "host:port"
// candidates.
//
// Two sources are supported: a static comma-separated list given on the
// command line, and DNS bootstrap names whose A and AAAA records are
// resolved against one or more DNS servers:
//
//	r, err := discovery.NewResolver(discovery.DefaultConfig())
//	addrs, err := r.Resolve(ctx)
//	addrs = discovery.Rotate(addrs, discovery.RandomOffset(len(addrs)))
//
// Names are resolved concurrently and transient query failures are retried
// with exponential backoff. Resolution only fails when no name produced an
// address.
package discovery
