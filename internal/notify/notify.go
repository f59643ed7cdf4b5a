// Package notify delivers outbound notifications. Delivery is at-least-once:
// the channel offers no deduplication, and the system tolerates a duplicate
// notification over a missed one.
package notify

import "context"

// Notifier is the outbound channel. SendText is email under the hood: the
// recipient is a carrier gateway address that relays the body as a text
// message. Both methods return the provider's message id.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
	SendText(ctx context.Context, recipient, body string) (string, error)
}
