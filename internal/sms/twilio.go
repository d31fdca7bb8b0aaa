package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends messages through the Twilio Messages API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

func NewTwilio(accountSID, authToken, from string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{client: client, from: from}
}

func (t *Twilio) Send(ctx context.Context, phone, text string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + phone)
	params.SetFrom(t.from)
	params.SetBody(text)

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			done <- result{err: err}
			return
		}
		sid := ""
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- result{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio send: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("twilio send: %w", r.err)
		}
		return r.sid, nil
	}
}
