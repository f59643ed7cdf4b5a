// Package inbox provides read access to the mailbox the automation watches.
// Implementations: Gmail API and a local drop directory for development.
package inbox

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Message is one fetched email with its body already decoded to text.
type Message struct {
	ID      string
	Sender  string
	Subject string
	Body    string
}

// Inbox searches the mailbox. The query uses Gmail search syntax; the local
// directory implementation honors the from: term and ignores date terms.
type Inbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]Message, error)
}

// BillQuery builds the statement search for the given window.
func BillQuery(sender string, start, end time.Time) string {
	return fmt.Sprintf("from:%s after:%s before:%s",
		sender, start.Format("2006/01/02"), end.Format("2006/01/02"))
}

// ConfirmationQuery builds the payment-confirmation search. The quoted phrase
// narrows the result set server-side; the matcher re-checks the full gate.
func ConfirmationQuery(sender string, since time.Time) string {
	return fmt.Sprintf("from:%s after:%s %q", sender, since.Format("2006/01/02"), "you charged")
}

var htmlTagRe = regexp.MustCompile(`<[^<]+?>`)

// StripHTML removes tags from an HTML body so the extractors see plain text.
func StripHTML(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}
