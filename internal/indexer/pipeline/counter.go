package pipeline

import (
	"fmt"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/wordindex/pkg/errors"
)

// Counter tracks producers that have not yet completed. The transition to
// zero is an edge: exactly one Done call reports it.
type Counter struct {
	mu     sync.Mutex
	active int
}

func NewCounter(producers int) *Counter {
	return &Counter{active: producers}
}

// Done records one producer's completion and reports whether it was the
// last. Calling Done more times than there were producers is a protocol
// violation.
func (c *Counter) Done() (last bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active <= 0 {
		return false, fmt.Errorf("producer completed after count reached zero: %w", apperrors.ErrProtocolViolation)
	}
	c.active--
	return c.active == 0, nil
}

// Active returns the number of producers still running.
func (c *Counter) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
