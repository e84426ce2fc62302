// Package admission bounds how many requests run at once, globally and per
// calling identity. Requests beyond either bound are rejected immediately.
package admission

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Default bounds.
const (
	DefaultGlobal      = 3
	DefaultPerIdentity = 1
)

// Controller owns the in-flight counters.
type Controller struct {
	global      *semaphore.Weighted
	globalLimit int
	perIdentity int

	mu       sync.Mutex
	inFlight int
	byID     map[string]int
}

// New builds a Controller. Non-positive bounds fall back to the defaults.
func New(global, perIdentity int) *Controller {
	if global <= 0 {
		global = DefaultGlobal
	}
	if perIdentity <= 0 {
		perIdentity = DefaultPerIdentity
	}
	return &Controller{
		global:      semaphore.NewWeighted(int64(global)),
		globalLimit: global,
		perIdentity: perIdentity,
		byID:        make(map[string]int),
	}
}

// Acquire claims a slot for identity. On success the returned release func
// must be called exactly once when the request ends; extra calls are no-ops.
// On rejection the error wraps lead.ErrAdmissionRejected.
func (c *Controller) Acquire(identity string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byID[identity] >= c.perIdentity {
		return nil, lead.ErrIdentityLimit
	}
	if !c.global.TryAcquire(1) {
		return nil, lead.ErrGlobalLimit
	}
	c.byID[identity]++
	c.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() { c.release(identity) })
	}, nil
}

func (c *Controller) release(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.byID[identity]; n <= 1 {
		delete(c.byID, identity)
	} else {
		c.byID[identity] = n - 1
	}
	c.inFlight--
	c.global.Release(1)
}

// InFlight returns the number of admitted requests.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// InFlightFor returns the number of admitted requests for identity.
func (c *Controller) InFlightFor(identity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[identity]
}

// Limits returns the configured global and per-identity bounds.
func (c *Controller) Limits() (global, perIdentity int) {
	return c.globalLimit, c.perIdentity
}
