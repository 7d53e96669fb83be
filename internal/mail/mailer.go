package mail

import (
	"context"
	"time"
)

// Mailer delivers the verification link out-of-band. Delivery is
// fire-and-forget from the flow's perspective: the caller logs and counts
// failures but still renders the "link sent" page.
type Mailer interface {
	SendVerificationLink(ctx context.Context, to, link string, expiresIn time.Duration) error
}
