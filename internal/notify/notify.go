// Package notify defines the outbound notification boundary. Real
// SMS, WhatsApp and email transports live behind the Sender interface;
// this repo ships only the log-backed sender.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
)

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Message is one rendered notification ready for delivery.
type Message struct {
	UserID  string
	Channel Channel
	Subject string
	Body    string
}

// Sender delivers a rendered message over one channel.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// LogSender writes notifications to the log instead of a transport.
// Used in development and as the default when no transport is
// configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-backed sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message at info level.
func (s *LogSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("notification",
		zap.String("user_id", msg.UserID),
		zap.String("channel", string(msg.Channel)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// RenderReminder produces the reminder text for a due dose. Static
// template; no model call is involved in the delivery path.
func RenderReminder(ev *events.ReminderDue) *Message {
	timing := strings.ReplaceAll(ev.Timing, "_", " ")

	body := fmt.Sprintf("Time for your %s dose: %s", timing, ev.MedicineName)
	if ev.Dosage != "" {
		body += fmt.Sprintf(" (%s)", ev.Dosage)
	}
	body += fmt.Sprintf(". Scheduled at %s.", ev.ScheduledTime.Format("15:04"))

	return &Message{
		UserID:  ev.UserID,
		Channel: ChannelSMS,
		Subject: "Medicine reminder",
		Body:    body,
	}
}

// RenderSafetyAlert produces the notification for a raised safety
// alert.
func RenderSafetyAlert(ev *events.SafetyAlertRaised) *Message {
	subject := fmt.Sprintf("Medication safety alert: %s", ev.SafetyLevel)
	body := ev.Recommendation
	if ev.FailSafe {
		body = "We could not verify your medication combination. " + body
	}
	body += fmt.Sprintf(" (checked %s)", ev.CheckedAt.Format(time.RFC822))

	return &Message{
		UserID:  ev.UserID,
		Channel: ChannelSMS,
		Subject: subject,
		Body:    body,
	}
}
