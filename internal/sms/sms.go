// Package sms delivers short text messages through a configured provider.
package sms

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"classsite/internal/config"
	"classsite/internal/utils"
)

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, phone, text string) (string, error)
}

// New picks the sender named by cfg.Provider. logText lets the dry-run sender
// log message bodies and must be false in production.
func New(cfg config.SMSConfig, logText bool, log logrus.FieldLogger) (Sender, error) {
	switch cfg.Provider {
	case "", "dry-run":
		return NewDryRun(log, logText), nil
	case "mobizon":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("mobizon: api key is required")
		}
		return NewMobizon(cfg.APIKey, cfg.Sender), nil
	case "twilio":
		if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.Sender == "" {
			return nil, fmt.Errorf("twilio: account sid, auth token and sender are required")
		}
		return NewTwilio(cfg.AccountSID, cfg.AuthToken, cfg.Sender), nil
	}
	return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
}

// DryRun logs messages instead of sending them and keeps the last one per phone.
type DryRun struct {
	log     logrus.FieldLogger
	logText bool

	mu   sync.Mutex
	seq  int
	last map[string]string
}

func NewDryRun(log logrus.FieldLogger, logText bool) *DryRun {
	return &DryRun{log: log, logText: logText, last: make(map[string]string)}
}

func (d *DryRun) Send(ctx context.Context, phone, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	d.seq++
	id := fmt.Sprintf("dry-run-%d", d.seq)
	d.last[phone] = text
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"phone": utils.MaskPhone(phone), "message_id": id}).Info("[sms][dry-run] message not sent")
	// текст содержит код
	if d.logText {
		d.log.WithField("message_id", id).Debugf("[sms][dry-run] text=%q", text)
	}
	return id, nil
}

// Last returns the most recent text sent to phone.
func (d *DryRun) Last(phone string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.last[phone]
	return text, ok
}
