package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/whoareyou/internal/phone"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends SMS through the Twilio Messages API. Failed sends are not retried.
type Twilio struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewTwilio creates a Twilio sender.
func NewTwilio(accountSID, authToken, from string, logger *slog.Logger) *Twilio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:   from,
		logger: logger,
	}
}

// Send delivers one message.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Debug("SMS sent", "to", phone.Mask(to), "message_sid", sid)
	return nil
}

// Ready always succeeds; credentials are checked by Twilio on send.
func (t *Twilio) Ready() error { return nil }
