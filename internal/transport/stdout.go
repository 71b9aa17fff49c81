package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sungwon/mailrelay/internal/mimemsg"
)

// Stdout writes a readable summary of each message to a writer instead of
// delivering it. Intended for development.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout creates a Stdout transport that prints to w.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{writer: w}
}

func (s *Stdout) GetName() string { return TypeStdout }

// Send parses the raw message and prints its headers and bodies.
func (s *Stdout) Send(_ context.Context, env *Envelope) (*Receipt, error) {
	parsed, err := mimemsg.Parse(env.Raw)
	if err != nil {
		return nil, ClassifyError(TypeStdout, err)
	}

	var b strings.Builder
	b.WriteString("--- stdout transport: message ---\n")
	fmt.Fprintf(&b, "Message-ID: %s\n", env.MessageID)
	fmt.Fprintf(&b, "From:       %s\n", env.From)
	fmt.Fprintf(&b, "Rcpt:       %s\n", strings.Join(env.Recipients, ", "))
	fmt.Fprintf(&b, "Subject:    %s\n", parsed.Subject)
	if sig := parsed.Headers.Get("DKIM-Signature"); sig != "" {
		b.WriteString("DKIM:       signed\n")
	}
	fmt.Fprintf(&b, "Text:\n%s\n", parsed.TextBody)
	fmt.Fprintf(&b, "HTML:       (%d bytes)\n", len(parsed.HTMLBody))
	for _, att := range parsed.Attachments {
		fmt.Fprintf(&b, "Attachment: %s (%s, %d bytes)\n", att.Filename, att.ContentType, len(att.Content))
	}
	b.WriteString("--- end ---\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, ClassifyError(TypeStdout, fmt.Errorf("stdout: write: %w", err))
	}

	return &Receipt{
		MessageID: env.MessageID,
		Accepted:  append([]string(nil), env.Recipients...),
		Response:  "written to stdout",
	}, nil
}

// HealthCheck always returns nil since stdout is always available.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
