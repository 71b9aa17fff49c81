package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/config"
)

const (
	defaultSMTPTimeout = 30 * time.Second
	defaultHelloName   = "localhost"
)

// SMTP relays messages to a single upstream SMTP server.
type SMTP struct {
	cfg    config.SMTPConfig
	addr   string
	dialer *net.Dialer
	tls    *tls.Config
	log    zerolog.Logger

	// startTLS is set once the relay has advertised STARTTLS.
	startTLS atomic.Bool
}

// NewSMTP creates an SMTP relay transport. With cfg.Secure the connection
// uses implicit TLS; otherwise STARTTLS is used when the server offers it.
func NewSMTP(cfg config.SMTPConfig, log zerolog.Logger) *SMTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	if cfg.HelloName == "" {
		cfg.HelloName = defaultHelloName
	}
	return &SMTP{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		dialer: &net.Dialer{Timeout: cfg.Timeout},
		tls: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Opt-in for relays with self-signed certs.
			MinVersion:         tls.VersionTLS12,
		},
		log: log.With().Str("transport", TypeSMTP).Str("relay", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))).Logger(),
	}
}

func (s *SMTP) GetName() string { return TypeSMTP }

// Send runs one SMTP transaction. Recipients refused with an SMTP reply are
// collected in Receipt.Rejected; the send fails only if all are refused or
// the transaction itself fails.
func (s *SMTP) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	if len(env.Recipients) == 0 {
		return nil, &TransportError{Transport: TypeSMTP, Message: "no recipients defined", Permanent: true}
	}

	c, err := s.connect(ctx)
	if err != nil {
		return nil, ClassifyError(TypeSMTP, err)
	}
	defer c.Close()

	if err := c.Mail(env.From, nil); err != nil {
		return nil, ClassifyError(TypeSMTP, err)
	}

	var accepted, rejected []string
	var lastRejection error
	for _, rcpt := range env.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			var smtpErr *gosmtp.SMTPError
			if !errors.As(err, &smtpErr) {
				return nil, ClassifyError(TypeSMTP, err)
			}
			s.log.Warn().Err(err).Str("recipient", rcpt).Str("message_id", env.MessageID).Msg("recipient rejected by relay")
			rejected = append(rejected, rcpt)
			lastRejection = err
			continue
		}
		accepted = append(accepted, rcpt)
	}

	if len(accepted) == 0 {
		te := ClassifyError(TypeSMTP, lastRejection)
		te.Message = "all recipients were rejected: " + te.Message
		return nil, te
	}

	w, err := c.Data()
	if err != nil {
		return nil, ClassifyError(TypeSMTP, err)
	}
	if _, err := w.Write(env.Raw); err != nil {
		_ = w.Close()
		return nil, ClassifyError(TypeSMTP, err)
	}
	if err := w.Close(); err != nil {
		return nil, ClassifyError(TypeSMTP, err)
	}

	if err := c.Quit(); err != nil {
		s.log.Debug().Err(err).Msg("quit after delivery failed")
	}

	return &Receipt{
		MessageID: env.MessageID,
		Accepted:  accepted,
		Rejected:  rejected,
		Response:  fmt.Sprintf("accepted by %s", s.addr),
	}, nil
}

// HealthCheck connects, greets and issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("smtp: health check: %w", err)
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: health check noop: %w", err)
	}
	return c.Quit()
}

// connect dials the relay, greets it, upgrades to TLS when possible and
// authenticates when credentials are configured. Once a relay has
// advertised STARTTLS, later connections require the upgrade.
func (s *SMTP) connect(ctx context.Context) (*gosmtp.Client, error) {
	if s.cfg.Secure {
		conn, err := s.dial(ctx)
		if err != nil {
			return nil, err
		}
		c := gosmtp.NewClient(tls.Client(conn, s.tls.Clone()))
		if err := c.Hello(s.cfg.HelloName); err != nil {
			c.Close()
			return nil, err
		}
		return s.authenticate(c)
	}

	if s.startTLS.Load() {
		return s.connectStartTLS(ctx)
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	c := gosmtp.NewClient(conn)
	if err := c.Hello(s.cfg.HelloName); err != nil {
		c.Close()
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		// The client cannot upgrade after Hello; reconnect and let
		// NewClientStartTLS run the greeting and the upgrade.
		if err := c.Quit(); err != nil {
			c.Close()
		}
		s.startTLS.Store(true)
		return s.connectStartTLS(ctx)
	}
	return s.authenticate(c)
}

// connectStartTLS opens a session that must be upgraded with STARTTLS.
// NewClientStartTLS greets as "localhost"; hello_name applies to plaintext
// and implicit TLS sessions only.
func (s *SMTP) connectStartTLS(ctx context.Context) (*gosmtp.Client, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gosmtp.NewClientStartTLS(conn, s.tls.Clone())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return s.authenticate(c)
}

// dial connects to the relay with a deadline covering the whole session.
func (s *SMTP) dial(ctx context.Context) (net.Conn, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	return conn, nil
}

func (s *SMTP) authenticate(c *gosmtp.Client) (*gosmtp.Client, error) {
	if s.cfg.Username == "" {
		return c, nil
	}
	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
