// Package resolver provides a cached reverse-DNS lookup used to fill in
// the REMOTE_HOST CGI variable, grounded on httptask.py's
// getCGIEnvironment, which calls
// channel.getServer().resolver.resolve_ptr(ip, callback) — here
// synchronous and cached instead of callback-based, since Go's net
// package already backgrounds the syscall behind a blocking call.
package resolver

import (
	"context"
	"net"
	"time"

	"github.com/patrickmn/go-cache"
)

// Resolver resolves an IP address to a hostname, caching both hits and
// misses so a chatty client does not trigger a PTR lookup per request.
type Resolver struct {
	cache *cache.Cache
	lookup func(ctx context.Context, addr string) ([]string, error)
}

// New returns a Resolver whose entries expire after ttl (0 disables
// expiry) and are purged every cleanup interval.
func New(ttl, cleanup time.Duration) *Resolver {
	return &Resolver{
		cache:  cache.New(ttl, cleanup),
		lookup: net.DefaultResolver.LookupAddr,
	}
}

// Resolve returns the first PTR record for ip, or ip itself if the
// lookup fails or returns nothing, so a REMOTE_HOST built from it falls
// back to the client address.
func (r *Resolver) Resolve(ctx context.Context, ip string) string {
	if cached, ok := r.cache.Get(ip); ok {
		return cached.(string)
	}
	names, err := r.lookup(ctx, ip)
	host := ip
	if err == nil && len(names) > 0 {
		host = trimTrailingDot(names[0])
	}
	r.cache.SetDefault(ip, host)
	return host
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}
