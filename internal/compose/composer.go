package compose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/screen"
)

const defaultMailer = "mailrelay"

// RecipientChecker validates a single recipient address.
type RecipientChecker interface {
	Validate(address string) bool
	DomainExists(ctx context.Context, address string) bool
}

// HTMLRenderer produces an HTML body from plain text.
type HTMLRenderer interface {
	Render(content, templateType string) string
}

// ScreenFunc scores subject, text and html content.
type ScreenFunc func(subject, text, html string) screen.Verdict

// Composer builds Messages for a fixed sender identity.
type Composer struct {
	sender     config.SenderConfig
	recipients RecipientChecker
	renderer   HTMLRenderer
	screen     ScreenFunc
	now        func() time.Time
	log        zerolog.Logger
}

// NewComposer creates a Composer. The sender configuration is copied; later
// changes to the caller's value have no effect.
func NewComposer(sender config.SenderConfig, recipients RecipientChecker, renderer HTMLRenderer, log zerolog.Logger) *Composer {
	if sender.Mailer == "" {
		sender.Mailer = defaultMailer
	}
	return &Composer{
		sender:     sender,
		recipients: recipients,
		renderer:   renderer,
		screen:     screen.Screen,
		now:        time.Now,
		log:        log,
	}
}

// Compose validates req and assembles the outgoing Message. It returns
// ErrMissingFields, a *ValidationError for the first bad recipient, or
// ErrContentRejected.
func (c *Composer) Compose(ctx context.Context, req Request) (*Message, error) {
	log := c.log.With().Str("correlation_id", logger.CorrelationIDFromContext(ctx)).Logger()

	if req.To == "" || req.Subject == "" || req.Text == "" {
		metrics.ValidationFailuresTotal.WithLabelValues("missing_fields").Inc()
		log.Warn().Msg("send request missing required fields")
		return nil, ErrMissingFields
	}

	if err := c.checkRecipients(ctx, req); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(err.Reason).Inc()
		log.Warn().Str("address", err.Address).Str("reason", err.Reason).Msg("recipient validation failed")
		return nil, err
	}

	verdict := c.screen(req.Subject, req.Text, req.HTML)
	if !verdict.Acceptable {
		metrics.ContentRejectedTotal.WithLabelValues(string(verdict.Rule)).Inc()
		log.Warn().
			Str("rule", string(verdict.Rule)).
			Strs("phrases", verdict.MatchedPhrases).
			Float64("uppercase_ratio", verdict.UppercaseRatio).
			Msg("content rejected")
		return nil, ErrContentRejected
	}

	html := req.HTML
	if html == "" {
		html = c.renderer.Render(req.Text, req.TemplateType)
	}

	msg := &Message{
		From: Sender{
			Name:    c.sender.Name,
			Address: c.sender.Address,
		},
		To:          req.To,
		CC:          nonEmpty(req.CC),
		BCC:         nonEmpty(req.BCC),
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        html,
		Attachments: append([]Attachment(nil), req.Attachments...),
		MessageID:   c.newMessageID(),
		Headers: []Header{
			{Name: "X-Mailer", Value: c.sender.Mailer},
			{Name: "X-Priority", Value: "3"},
			{Name: "List-Unsubscribe", Value: fmt.Sprintf("<mailto:unsubscribe@%s>", c.sender.Domain)},
		},
		Tracking: Tracking{Click: false, Open: false},
	}

	log.Debug().Str("message_id", msg.MessageID).Int("recipients", len(msg.Recipients())).Msg("message composed")
	return msg, nil
}

// checkRecipients validates to, cc and bcc in order, stopping at the first
// failure. Duplicates are checked again.
func (c *Composer) checkRecipients(ctx context.Context, req Request) *ValidationError {
	all := make([]string, 0, 1+len(req.CC)+len(req.BCC))
	all = append(all, req.To)
	all = append(all, req.CC...)
	all = append(all, req.BCC...)

	for _, addr := range all {
		if !c.recipients.Validate(addr) {
			return &ValidationError{Address: addr, Reason: ReasonInvalidAddress}
		}
		if !c.recipients.DomainExists(ctx, addr) {
			return &ValidationError{Address: addr, Reason: ReasonDomainNotFound}
		}
	}
	return nil
}

// newMessageID combines a nanosecond timestamp with a random UUID so that
// concurrent calls never collide.
func (c *Composer) newMessageID() string {
	return fmt.Sprintf("<%d.%s@%s>", c.now().UnixNano(), uuid.NewString(), c.sender.Domain)
}

func nonEmpty(list AddressList) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}
