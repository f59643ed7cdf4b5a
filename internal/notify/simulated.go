package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SimulatedSend records one suppressed delivery.
type SimulatedSend struct {
	Kind      string // "email" or "text"
	Recipient string
	Subject   string
	Body      string
}

// Simulated is the test-mode channel: no external call is made, but every
// send is recorded and acknowledged as delivered so the lifecycle logic runs
// unchanged.
type Simulated struct {
	mu     sync.Mutex
	sends  []SimulatedSend
	logger *zap.Logger
}

func NewSimulated(logger *zap.Logger) *Simulated {
	return &Simulated{logger: logger}
}

func (s *Simulated) SendEmail(_ context.Context, to, subject, body string) (string, error) {
	return s.record(SimulatedSend{Kind: "email", Recipient: to, Subject: subject, Body: body})
}

func (s *Simulated) SendText(_ context.Context, recipient, body string) (string, error) {
	return s.record(SimulatedSend{Kind: "text", Recipient: recipient, Body: body})
}

func (s *Simulated) record(send SimulatedSend) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, send)
	s.logger.Info("notify.simulated",
		zap.String("kind", send.Kind),
		zap.String("recipient", send.Recipient),
	)
	return fmt.Sprintf("simulated-%d", len(s.sends)), nil
}

// Sends returns a copy of everything recorded so far.
func (s *Simulated) Sends() []SimulatedSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimulatedSend, len(s.sends))
	copy(out, s.sends)
	return out
}
