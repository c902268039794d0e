package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindReferralClaimed tells an inviter that someone registered with their code.
	KindReferralClaimed = "referral_claimed"
	// KindPinLocked tells a user their transaction PIN was locked.
	KindPinLocked = "pin_locked"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger instead of a
// delivery channel.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Recorder keeps every message in memory. Tests use it to assert delivery.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
