// Package mimemsg serialises composed messages to RFC 5322 / MIME bytes and
// parses raw messages back into their text, HTML and attachment parts.
package mimemsg

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/sungwon/mailrelay/internal/compose"
)

const (
	crlf            = "\r\n"
	base64LineLen   = 76
	headerLineLen   = 78
	defaultAttachCT = "application/octet-stream"

	// encodedTextLen keeps a forced encoded-word within 75 characters.
	encodedTextLen = 60
)

// now is replaced in tests.
var now = time.Now

// Build serialises msg. Bcc recipients are never written to the headers.
func Build(msg *compose.Message) ([]byte, error) {
	var buf bytes.Buffer

	from := mail.Address{Name: msg.From.Name, Address: msg.From.Address}
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", msg.To)
	if len(msg.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(msg.CC, ", "))
	}
	writeHeader(&buf, "Subject", encodeSubject(msg.Subject))
	writeHeader(&buf, "Date", now().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", msg.MessageID)
	writeHeader(&buf, "MIME-Version", "1.0")
	for _, h := range msg.Headers {
		writeHeader(&buf, h.Name, h.Value)
	}

	if len(msg.Attachments) == 0 {
		if err := writeAlternative(&buf, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mixed.Boundary()}))
	buf.WriteString(crlf)

	altBoundary := randomBoundary()
	alt, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": altBoundary})},
	})
	if err != nil {
		return nil, fmt.Errorf("mimemsg: create alternative part: %w", err)
	}
	if err := writeAlternativeBody(alt, msg, altBoundary); err != nil {
		return nil, err
	}

	for i, att := range msg.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, fmt.Errorf("mimemsg: attachment %d (%s): %w", i, att.Filename, err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("mimemsg: close multipart: %w", err)
	}
	return buf.Bytes(), nil
}

// writeHeader writes one header field, folding the value at spaces so that
// lines stay near 78 characters. A single word longer than that is left on
// its own line.
func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(":")
	lineLen := len(name) + 1
	for _, word := range strings.Split(value, " ") {
		if lineLen+1+len(word) > headerLineLen && lineLen > len(name)+1 {
			buf.WriteString(crlf)
			lineLen = 0
		}
		buf.WriteString(" ")
		buf.WriteString(word)
		lineLen += 1 + len(word)
	}
	buf.WriteString(crlf)
}

// encodeSubject Q-encodes subjects that need it. A plain ASCII subject is
// also encoded when one of its words is too long to fold.
func encodeSubject(subject string) string {
	encoded := mime.QEncoding.Encode("utf-8", subject)
	if encoded != subject {
		return encoded
	}
	for _, word := range strings.Fields(subject) {
		if len(word) > headerLineLen-len("Subject: ") {
			return forceQEncode(subject)
		}
	}
	return subject
}

// forceQEncode splits an ASCII string into Q encoded-words.
func forceQEncode(s string) string {
	var words []string
	var chunk strings.Builder
	flush := func() {
		if chunk.Len() > 0 {
			words = append(words, "=?utf-8?q?"+chunk.String()+"?=")
			chunk.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			chunk.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '!', c == '*', c == '+', c == '-', c == '/':
			chunk.WriteByte(c)
		default:
			fmt.Fprintf(&chunk, "=%02X", c)
		}
		if chunk.Len() >= encodedTextLen {
			flush()
		}
	}
	flush()
	return strings.Join(words, " ")
}

// writeAlternative writes the multipart/alternative Content-Type header
// followed by the text and html parts.
func writeAlternative(buf *bytes.Buffer, msg *compose.Message) error {
	boundary := randomBoundary()
	writeHeader(buf, "Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": boundary}))
	buf.WriteString(crlf)
	return writeAlternativeBody(buf, msg, boundary)
}

func writeAlternativeBody(w io.Writer, msg *compose.Message, boundary string) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return fmt.Errorf("mimemsg: set boundary: %w", err)
	}

	if err := writeQuotedPrintable(mw, "text/plain", msg.Text); err != nil {
		return err
	}
	if err := writeQuotedPrintable(mw, "text/html", msg.HTML); err != nil {
		return err
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("mimemsg: close alternative: %w", err)
	}
	return nil
}

func writeQuotedPrintable(mw *multipart.Writer, mediaType, body string) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(mediaType, map[string]string{"charset": "UTF-8"})},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("mimemsg: create %s part: %w", mediaType, err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := io.WriteString(qp, body); err != nil {
		return fmt.Errorf("mimemsg: write %s part: %w", mediaType, err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("mimemsg: flush %s part: %w", mediaType, err)
	}
	return nil
}

func writeAttachment(mw *multipart.Writer, att compose.Attachment) error {
	content, err := DecodeAttachment(att)
	if err != nil {
		return err
	}

	ct := AttachmentContentType(att)
	header := textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": att.Filename})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		"Content-Transfer-Encoding": {"base64"},
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > base64LineLen {
		if _, err := io.WriteString(part, encoded[:base64LineLen]+crlf); err != nil {
			return fmt.Errorf("write content: %w", err)
		}
		encoded = encoded[base64LineLen:]
	}
	if _, err := io.WriteString(part, encoded+crlf); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

// DecodeAttachment returns the attachment bytes, decoding Content according
// to Encoding. Unknown encodings are treated as raw text.
func DecodeAttachment(att compose.Attachment) ([]byte, error) {
	switch strings.ToLower(att.Encoding) {
	case "base64":
		b, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("decode base64 content: %w", err)
		}
		return b, nil
	case "hex":
		b, err := hex.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("decode hex content: %w", err)
		}
		return b, nil
	default:
		return []byte(att.Content), nil
	}
}

// AttachmentContentType returns the declared content type, or one derived
// from the filename extension.
func AttachmentContentType(att compose.Attachment) string {
	if att.ContentType != "" {
		return att.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(att.Filename)); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil {
			return mediaType
		}
	}
	return defaultAttachCT
}

// randomBoundary borrows multipart.Writer's boundary generator.
func randomBoundary() string {
	return multipart.NewWriter(io.Discard).Boundary()
}
