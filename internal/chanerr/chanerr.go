// Package chanerr aggregates the several errors a channel or dispatcher
// shutdown path can produce (closing a socket, a spill file, a passive
// acceptor) into one reportable error.
package chanerr

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Collector accumulates errors from concurrent close paths.
type Collector struct {
	mu  sync.Mutex
	err *multierror.Error
}

// Add records err if non-nil. Safe for concurrent use.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = multierror.Append(c.err, err)
}

// Err returns the aggregated error, or nil if nothing was collected.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err.ErrorOrNil()
}
