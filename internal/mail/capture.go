package mail

import (
	"context"
	"sync"
	"time"
)

// Sent records one captured delivery.
type Sent struct {
	To        string
	Link      string
	ExpiresIn time.Duration
}

// Capture is a Mailer that records deliveries instead of sending them.
// Tests and development wiring use it; Fail makes every send error.
type Capture struct {
	mu   sync.Mutex
	sent []Sent
	Fail error
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) SendVerificationLink(ctx context.Context, to, link string, expiresIn time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	c.sent = append(c.sent, Sent{To: to, Link: link, ExpiresIn: expiresIn})
	return nil
}

// Messages returns a snapshot of captured deliveries.
func (c *Capture) Messages() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}
