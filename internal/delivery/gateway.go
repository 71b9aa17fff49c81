// Package delivery hands composed messages to a transport and normalises
// the outcome into a Result.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/compose"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/mimemsg"
	"github.com/sungwon/mailrelay/internal/transport"
)

// Result is the outcome of one delivery attempt. On failure Error holds the
// transport's message unchanged.
type Result struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"messageId,omitempty"`
	Accepted  []string `json:"accepted,omitempty"`
	Rejected  []string `json:"rejected,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Service delivers a composed message.
type Service interface {
	Deliver(ctx context.Context, msg *compose.Message) Result
}

// Gateway serialises, signs and sends messages through a single transport.
type Gateway struct {
	transport transport.Transport
	signer    *transport.Signer
	build     func(*compose.Message) ([]byte, error)
	log       zerolog.Logger
}

// NewGateway creates a Gateway. signer may be nil to send unsigned.
func NewGateway(t transport.Transport, signer *transport.Signer, log zerolog.Logger) *Gateway {
	return &Gateway{
		transport: t,
		signer:    signer,
		build:     mimemsg.Build,
		log:       log,
	}
}

// Deliver never panics and never returns an error: every failure, including
// a panic inside the transport, becomes a Result with Success false.
// Partial rejection is reported as success.
func (g *Gateway) Deliver(ctx context.Context, msg *compose.Message) (res Result) {
	name := g.transport.GetName()
	log := g.log.With().
		Str("correlation_id", logger.CorrelationIDFromContext(ctx)).
		Str("transport", name).
		Str("message_id", msg.MessageID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("transport panicked")
			metrics.TransportErrorsTotal.WithLabelValues(name, "panic").Inc()
			metrics.EmailsSentTotal.WithLabelValues("failed").Inc()
			res = Result{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	raw, err := g.build(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build message")
		metrics.EmailsSentTotal.WithLabelValues("failed").Inc()
		return Result{Success: false, Error: err.Error()}
	}

	signed, err := g.signer.Sign(raw)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign message")
		metrics.EmailsSentTotal.WithLabelValues("failed").Inc()
		return Result{Success: false, Error: err.Error()}
	}

	env := &transport.Envelope{
		MessageID:  msg.MessageID,
		From:       msg.From.Address,
		Recipients: msg.Recipients(),
		Raw:        signed,
	}

	start := time.Now()
	receipt, err := g.transport.Send(ctx, env)
	metrics.DeliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		class := transport.Class(err)
		log.Error().Err(err).Str("class", class).Bool("retryable", transport.IsTransient(err)).Msg("transport send failed")
		metrics.TransportErrorsTotal.WithLabelValues(name, class).Inc()
		metrics.EmailsSentTotal.WithLabelValues("failed").Inc()
		return Result{Success: false, Error: err.Error()}
	}

	messageID := receipt.MessageID
	if messageID == "" {
		messageID = msg.MessageID
	}

	log.Info().
		Strs("accepted", receipt.Accepted).
		Strs("rejected", receipt.Rejected).
		Str("response", receipt.Response).
		Dur("duration", time.Since(start)).
		Msg("message delivered")
	metrics.EmailsSentTotal.WithLabelValues("delivered").Inc()

	return Result{
		Success:   true,
		MessageID: messageID,
		Accepted:  receipt.Accepted,
		Rejected:  receipt.Rejected,
	}
}
