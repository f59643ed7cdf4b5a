package notify

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSimulatedRecordsWithoutSending(t *testing.T) {
	s := NewSimulated(zap.NewNop())
	ctx := context.Background()

	id, err := s.SendText(ctx, "5551234567@vtext.com", "PG&E Bill - March 2025")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "simulated-1" {
		t.Errorf("id = %q", id)
	}
	if _, err := s.SendEmail(ctx, "roommate@example.com", "bill split", "details"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}

	sends := s.Sends()
	if len(sends) != 2 {
		t.Fatalf("recorded %d sends, want 2", len(sends))
	}
	if sends[0].Kind != "text" || sends[0].Recipient != "5551234567@vtext.com" {
		t.Errorf("first send = %+v", sends[0])
	}
	if sends[1].Kind != "email" || sends[1].Subject != "bill split" {
		t.Errorf("second send = %+v", sends[1])
	}
}

func TestBuildRawMessage(t *testing.T) {
	raw := buildRawMessage("me@example.com", "you@example.com", "Hello", "line one\nline two")
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatal("no header/body separator")
	}
	for _, want := range []string{
		"From: me@example.com",
		"To: you@example.com",
		"Subject: Hello",
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
	} {
		if !strings.Contains(head, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if body != "line one\nline two" {
		t.Errorf("body = %q", body)
	}
}
