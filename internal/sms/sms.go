// Package sms delivers outbound text messages.
package sms

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/whoareyou/internal/config"
	"github.com/ashureev/whoareyou/internal/phone"
)

// ErrNotConfigured is returned when no SMS credentials are available.
var ErrNotConfigured = errors.New("sms transport not configured: set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER")

// Sender sends one SMS. Each call is independent.
type Sender interface {
	Send(ctx context.Context, to, body string) error
	Ready() error
}

// New picks a sender for the configuration: dry run when requested, Twilio
// when credentials are present, otherwise one that reports ErrNotConfigured.
func New(cfg config.TwilioConfig, logger *slog.Logger) Sender {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case cfg.DryRun:
		logger.Info("SMS dry run enabled, messages are only logged")
		return NewDryRun(logger)
	case cfg.Configured():
		return NewTwilio(cfg.AccountSID, cfg.AuthToken, cfg.PhoneNumber, logger)
	default:
		logger.Warn("SMS transport not configured")
		return Unconfigured{}
	}
}

// Unconfigured fails every send with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Send(context.Context, string, string) error { return ErrNotConfigured }
func (Unconfigured) Ready() error                               { return ErrNotConfigured }

// Sent is a message captured by DryRun.
type Sent struct {
	To   string
	Body string
}

// DryRun logs messages instead of sending them and keeps a copy.
type DryRun struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Sent
}

// NewDryRun creates a logging sender.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger}
}

// Send records the message.
func (d *DryRun) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.sent = append(d.sent, Sent{To: to, Body: body})
	d.mu.Unlock()

	d.logger.Info("SMS (dry run)", "to", phone.Mask(to), "body", body)
	return nil
}

// Ready always succeeds.
func (d *DryRun) Ready() error { return nil }

// Sent returns a copy of every recorded message in send order.
func (d *DryRun) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Sent, len(d.sent))
	copy(out, d.sent)
	return out
}
