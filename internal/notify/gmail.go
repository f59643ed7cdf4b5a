package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ahting/billsplit/internal/common"
)

// GmailNotifier sends through the Gmail API from the configured account.
type GmailNotifier struct {
	svc    *gmail.Service
	from   string
	logger *zap.Logger
}

func NewGmailNotifier(ctx context.Context, from, clientID, clientSecret, refreshToken string, logger *zap.Logger) (*GmailNotifier, error) {
	if from == "" {
		return nil, fmt.Errorf("gmail sender address required")
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	return &GmailNotifier{svc: svc, from: from, logger: logger}, nil
}

func (g *GmailNotifier) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	raw := buildRawMessage(g.from, to, subject, body)
	msg := &gmail.Message{Raw: base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(raw))}
	sent, err := g.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		g.logger.Warn("notify.email_failed", zap.String("to", to), zap.Error(err))
		return "", fmt.Errorf("%w: %v", common.ErrDelivery, err)
	}
	g.logger.Info("notify.email_sent", zap.String("to", to), zap.String("message_id", sent.Id))
	return sent.Id, nil
}

// SendText delivers to a carrier gateway address with an empty subject, which
// the gateway relays as a text message.
func (g *GmailNotifier) SendText(ctx context.Context, recipient, body string) (string, error) {
	return g.SendEmail(ctx, recipient, "", body)
}

func buildRawMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
