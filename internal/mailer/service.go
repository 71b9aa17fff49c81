// Package mailer runs the compose and deliver pipeline for single and bulk
// send requests.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/compose"
	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/delivery"
	"github.com/sungwon/mailrelay/internal/logger"
)

const (
	defaultMaxBulk   = 10
	defaultBulkDelay = time.Second
)

var (
	// ErrBulkNotArray is returned when the bulk emails field is not a JSON array.
	ErrBulkNotArray = errors.New("emails must be an array")
	// ErrBulkTooLarge is returned when a bulk request exceeds the entry limit.
	ErrBulkTooLarge = errors.New("too many emails in bulk request")
)

// Composer builds a Message from a Request.
type Composer interface {
	Compose(ctx context.Context, req compose.Request) (*compose.Message, error)
}

// BulkRequest is the inbound shape of a bulk send. Entries and template are
// kept raw so that the template can be overlaid field by field.
type BulkRequest struct {
	Emails   json.RawMessage `json:"emails"`
	Template json.RawMessage `json:"template,omitempty"`
}

// BulkResult is the outcome of one bulk entry. Email is the entry's own
// "to" value, before the template is applied.
type BulkResult struct {
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Service runs the send pipeline.
type Service struct {
	composer Composer
	gateway  delivery.Service
	maxBulk  int
	delay    time.Duration
	pause    func(time.Duration)
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPause replaces the function used to wait between bulk entries.
func WithPause(pause func(time.Duration)) Option {
	return func(s *Service) {
		s.pause = pause
	}
}

// NewService creates a Service.
func NewService(composer Composer, gateway delivery.Service, bulk config.BulkConfig, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		composer: composer,
		gateway:  gateway,
		maxBulk:  bulk.MaxEmails,
		delay:    bulk.Delay,
		pause:    time.Sleep,
		log:      log,
	}
	if s.maxBulk <= 0 {
		s.maxBulk = defaultMaxBulk
	}
	if s.delay <= 0 {
		s.delay = defaultBulkDelay
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBulk returns the maximum number of entries accepted by SendBulk.
func (s *Service) MaxBulk() int { return s.maxBulk }

// Send composes and delivers one message. Composition errors are returned;
// delivery failures are reported in the Result.
func (s *Service) Send(ctx context.Context, req compose.Request) (*delivery.Result, error) {
	msg, err := s.composer.Compose(ctx, req)
	if err != nil {
		return nil, err
	}
	res := s.gateway.Deliver(ctx, msg)
	return &res, nil
}

// SendBulk validates the batch shape, then sends each entry in order,
// pausing after every attempt. Entry failures are recorded and never stop
// the batch. Once started the batch is not cancelled by ctx.
func (s *Service) SendBulk(ctx context.Context, req BulkRequest) ([]BulkResult, error) {
	entries, err := s.parseEntries(req.Emails)
	if err != nil {
		return nil, err
	}

	template, err := decodeObject(req.Template)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	log := s.log.With().
		Str("correlation_id", logger.CorrelationIDFromContext(ctx)).
		Int("entries", len(entries)).
		Logger()
	log.Info().Msg("bulk send started")

	ctx = context.WithoutCancel(ctx)
	results := make([]BulkResult, 0, len(entries))
	var sent int

	for i, entry := range entries {
		result := s.sendEntry(ctx, entry, template)
		if result.Success {
			sent++
		} else {
			log.Warn().Int("index", i).Str("email", result.Email).Str("error", result.Error).Msg("bulk entry failed")
		}
		results = append(results, result)

		s.pause(s.delay)
	}

	log.Info().Int("sent", sent).Int("failed", len(entries)-sent).Msg("bulk send finished")
	return results, nil
}

func (s *Service) parseEntries(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrBulkNotArray
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, ErrBulkNotArray
	}
	if len(entries) > s.maxBulk {
		return nil, fmt.Errorf("%w: maximum is %d", ErrBulkTooLarge, s.maxBulk)
	}
	return entries, nil
}

func (s *Service) sendEntry(ctx context.Context, entry json.RawMessage, template map[string]json.RawMessage) BulkResult {
	fields, err := decodeObject(entry)
	if err != nil {
		return BulkResult{Success: false, Error: "invalid email entry: " + err.Error()}
	}

	var result BulkResult
	if to, ok := fields["to"]; ok {
		_ = json.Unmarshal(to, &result.Email)
	}

	req, err := Merge(fields, template)
	if err != nil {
		result.Error = "invalid email entry: " + err.Error()
		return result
	}

	res, err := s.Send(ctx, req)
	switch {
	case err != nil:
		result.Error = err.Error()
	case !res.Success:
		result.Error = res.Error
	default:
		result.Success = true
		result.MessageID = res.MessageID
	}
	return result
}

// Merge overlays template onto an entry's fields and decodes the result.
// Template fields win over the entry's own fields.
func Merge(entry, template map[string]json.RawMessage) (compose.Request, error) {
	merged := make(map[string]json.RawMessage, len(entry)+len(template))
	for k, v := range entry {
		merged[k] = v
	}
	for k, v := range template {
		merged[k] = v
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return compose.Request{}, err
	}

	var req compose.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return compose.Request{}, err
	}
	return req, nil
}

// decodeObject decodes a JSON object into its raw fields. Empty input and
// null decode to an empty map.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]json.RawMessage{}, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
