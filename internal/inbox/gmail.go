package inbox

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
)

// GmailInbox reads the user's mailbox through the Gmail API using a stored
// OAuth refresh token.
type GmailInbox struct {
	svc    *gmail.Service
	logger *zap.Logger
}

// GmailCredentials is the OAuth client + refresh token trio.
type GmailCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func NewGmailInbox(ctx context.Context, creds GmailCredentials, logger *zap.Logger) (*GmailInbox, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("gmail credentials incomplete")
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	return &GmailInbox{svc: svc, logger: logger}, nil
}

// Search lists message ids matching the query, then fetches each in full and
// decodes its body. A message that cannot be fetched is skipped with a
// warning; the rest of the batch still comes back.
func (g *GmailInbox) Search(ctx context.Context, query string, maxResults int64) ([]Message, error) {
	g.logger.Info("inbox.search", zap.String("query", query))

	list, err := g.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail search: %w", err)
	}

	msgs := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := g.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			g.logger.Warn("inbox.fetch_failed", zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}
		m := Message{
			ID:      full.Id,
			Sender:  headerValue(full.Payload, "From"),
			Subject: headerValue(full.Payload, "Subject"),
			Body:    decodeBody(full.Payload),
		}
		msgs = append(msgs, m)
	}
	g.logger.Info("inbox.search_done", zap.String("query", query), zap.Int("messages", len(msgs)))
	return msgs, nil
}

func headerValue(p *gmail.MessagePart, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeBody walks message parts preferring text/plain, with HTML stripped to
// text as the fallback.
func decodeBody(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}
	if len(p.Parts) > 0 {
		var html string
		for _, part := range p.Parts {
			data := partData(part)
			if data == "" {
				continue
			}
			switch part.MimeType {
			case "text/plain":
				return data
			case "text/html":
				if html == "" {
					html = StripHTML(data)
				}
			default:
				if nested := decodeBody(part); nested != "" && html == "" {
					html = nested
				}
			}
		}
		return html
	}
	data := partData(p)
	if data == "" {
		return ""
	}
	if p.MimeType == "text/html" {
		return StripHTML(data)
	}
	return data
}

func partData(p *gmail.MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(p.Body.Data)
	if err != nil {
		return ""
	}
	return string(raw)
}
