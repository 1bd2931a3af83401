// Package simulated stands in for an external delivery channel: each message
// gets a biased random outcome instead of a real provider call.
package simulated

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"minicrm/internal/domain"
)

// Channel draws SENT with probability SuccessRate, FAILED otherwise,
// independently per message. Rand is injectable for deterministic tests;
// when nil, a time-seeded source is used.
type Channel struct {
	SuccessRate float64
	Rand        func() float64

	once sync.Once
	mu   sync.Mutex
	rnd  *rand.Rand
}

func New(successRate float64) *Channel {
	return &Channel{SuccessRate: successRate}
}

func (c *Channel) draw() float64 {
	if c.Rand != nil {
		return c.Rand()
	}
	c.once.Do(func() {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Float64()
}

// Deliver simulates handing one rendered message to the channel. The ctx and
// recipient are unused here but keep the signature shaped like a real
// provider client so one can be swapped in.
func (c *Channel) Deliver(ctx context.Context, recipient string, body string) (domain.DeliveryStatus, error) {
	if c.draw() < c.SuccessRate {
		return domain.StatusSent, nil
	}
	return domain.StatusFailed, nil
}
