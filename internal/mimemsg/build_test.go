package mimemsg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sungwon/mailrelay/internal/compose"
)

func testMessage() *compose.Message {
	return &compose.Message{
		From:      compose.Sender{Name: "Mailrelay", Address: "noreply@mail.example.net"},
		To:        "alice@example.org",
		Subject:   "Meeting tomorrow",
		Text:      "See you at 10am.",
		HTML:      "<p>See you at 10am.</p>",
		MessageID: "<1700000000000000000.abc@mail.example.net>",
		Headers: []compose.Header{
			{Name: "X-Mailer", Value: "mailrelay"},
			{Name: "X-Priority", Value: "3"},
			{Name: "List-Unsubscribe", Value: "<mailto:unsubscribe@mail.example.net>"},
		},
	}
}

func fixedNow(t *testing.T) {
	t.Helper()
	orig := now
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })
}

func TestBuild_Headers(t *testing.T) {
	fixedNow(t)
	msg := testMessage()
	msg.CC = []string{"bob@example.org", "carol@example.org"}
	msg.BCC = []string{"secret@example.org"}

	raw, err := Build(msg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"From", `"Mailrelay" <noreply@mail.example.net>`},
		{"To", "alice@example.org"},
		{"Cc", "bob@example.org, carol@example.org"},
		{"Date", "Sun, 01 Mar 2026 12:00:00 +0000"},
		{"Message-ID", "<1700000000000000000.abc@mail.example.net>"},
		{"MIME-Version", "1.0"},
		{"X-Mailer", "mailrelay"},
		{"X-Priority", "3"},
		{"List-Unsubscribe", "<mailto:unsubscribe@mail.example.net>"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := parsed.Headers.Get(tt.header); got != tt.want {
				t.Errorf("%s: expected %q, got %q", tt.header, tt.want, got)
			}
		})
	}

	if parsed.Subject != "Meeting tomorrow" {
		t.Errorf("expected subject, got %q", parsed.Subject)
	}
	if bytes.Contains(raw, []byte("secret@example.org")) {
		t.Error("bcc recipient must not appear in the message")
	}
}

func TestBuild_OmitsEmptyCc(t *testing.T) {
	raw, err := Build(testMessage())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if bytes.Contains(raw, []byte("\r\nCc:")) {
		t.Error("expected no Cc header when cc is empty")
	}
}

func TestBuild_EncodesNonASCII(t *testing.T) {
	msg := testMessage()
	msg.From.Name = "Équipe Mailrelay"
	msg.Subject = "Réunion demain"

	raw, err := Build(msg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !bytes.Contains(raw, []byte("Subject: =?utf-8?q?")) {
		t.Errorf("expected Q-encoded subject, got:\n%s", raw)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.Subject != "Réunion demain" {
		t.Errorf("expected decoded subject, got %q", parsed.Subject)
	}
	addr, err := parsed.Headers.AddressList("From")
	if err != nil || len(addr) != 1 || addr[0].Name != "Équipe Mailrelay" {
		t.Errorf("expected decoded display name, got %v (%v)", addr, err)
	}
}

func headerSection(raw []byte) string {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		return string(raw)
	}
	return string(raw[:end])
}

func TestBuild_FoldsLongHeaders(t *testing.T) {
	cc := make([]string, 40)
	for i := range cc {
		cc[i] = fmt.Sprintf("member%02d@example.org", i)
	}

	tests := []struct {
		name    string
		subject string
	}{
		{"ascii words", strings.Repeat("Quarterly report for the operations team ", 40)},
		{"non-ascii", strings.Repeat("Réunion de l'équipe demain matin ", 40)},
		{"single long word", strings.Repeat("x", 1200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := testMessage()
			msg.Subject = strings.TrimSpace(tt.subject)
			msg.CC = cc

			raw, err := Build(msg)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}

			lines := strings.Split(headerSection(raw), "\r\n")
			subjectAt := -1
			for i, line := range lines {
				if len(line) > 998 {
					t.Fatalf("header line of %d octets exceeds 998", len(line))
				}
				if strings.HasPrefix(line, "Subject:") {
					subjectAt = i
				}
			}
			if subjectAt < 0 || subjectAt+1 >= len(lines) {
				t.Fatal("expected a Subject header")
			}
			if len(lines[subjectAt]) > 100 || !strings.HasPrefix(lines[subjectAt+1], " ") {
				t.Errorf("expected subject folded onto continuation lines, got %q", lines[subjectAt])
			}

			parsed, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if parsed.Subject != msg.Subject {
				t.Errorf("expected subject to survive folding, got %q", parsed.Subject)
			}
			if got := parsed.Headers.Get("Cc"); got != strings.Join(cc, ", ") {
				t.Errorf("expected unfolded Cc, got %q", got)
			}
		})
	}
}

func TestBuild_AlternativeBody(t *testing.T) {
	raw, err := Build(testMessage())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !bytes.Contains(raw, []byte("Content-Type: multipart/alternative; boundary=")) {
		t.Errorf("expected multipart/alternative body, got:\n%s", raw)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.TextBody != "See you at 10am." {
		t.Errorf("expected text body, got %q", parsed.TextBody)
	}
	if parsed.HTMLBody != "<p>See you at 10am.</p>" {
		t.Errorf("expected html body, got %q", parsed.HTMLBody)
	}
	if len(parsed.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(parsed.Attachments))
	}
}

func TestBuild_LongHTMLLine(t *testing.T) {
	msg := testMessage()
	msg.HTML = "<p>" + strings.Repeat("x", 500) + "</p>"

	raw, err := Build(msg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	for _, line := range strings.Split(string(raw), "\r\n") {
		if len(line) > 998 {
			t.Fatalf("line exceeds RFC 5322 limit: %d", len(line))
		}
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.HTMLBody != msg.HTML {
		t.Error("expected long html line to survive quoted-printable round trip")
	}
}

func TestBuild_Attachments(t *testing.T) {
	msg := testMessage()
	pdf := []byte("%PDF-1.4 fake")
	msg.Attachments = []compose.Attachment{
		{Filename: "report.pdf", Content: base64.StdEncoding.EncodeToString(pdf), Encoding: "base64"},
		{Filename: "notes.txt", Content: "plain notes", ContentType: "text/plain"},
		{Filename: "blob.bin", Content: "cafe", Encoding: "hex", ContentType: "application/x-custom"},
	}

	raw, err := Build(msg)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !bytes.Contains(raw, []byte("Content-Type: multipart/mixed; boundary=")) {
		t.Errorf("expected multipart/mixed body, got:\n%s", raw)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.TextBody != "See you at 10am." {
		t.Errorf("expected text body, got %q", parsed.TextBody)
	}
	if len(parsed.Attachments) != 3 {
		t.Fatalf("expected 3 attachments, got %d", len(parsed.Attachments))
	}

	want := []ParsedAttachment{
		{Filename: "report.pdf", ContentType: "application/pdf", Content: pdf},
		{Filename: "notes.txt", ContentType: "text/plain", Content: []byte("plain notes")},
		{Filename: "blob.bin", ContentType: "application/x-custom", Content: []byte{0xca, 0xfe}},
	}
	for i, w := range want {
		got := parsed.Attachments[i]
		if got.Filename != w.Filename {
			t.Errorf("attachment %d: expected filename %q, got %q", i, w.Filename, got.Filename)
		}
		if got.ContentType != w.ContentType {
			t.Errorf("attachment %d: expected content type %q, got %q", i, w.ContentType, got.ContentType)
		}
		if !bytes.Equal(got.Content, w.Content) {
			t.Errorf("attachment %d: expected content %q, got %q", i, w.Content, got.Content)
		}
	}
}

func TestBuild_InvalidAttachmentEncoding(t *testing.T) {
	msg := testMessage()
	msg.Attachments = []compose.Attachment{{Filename: "x.bin", Content: "not hex!", Encoding: "hex"}}

	if _, err := Build(msg); err == nil {
		t.Fatal("expected error for undecodable attachment")
	}
}

func TestAttachmentContentType(t *testing.T) {
	tests := []struct {
		att  compose.Attachment
		want string
	}{
		{compose.Attachment{Filename: "a.pdf"}, "application/pdf"},
		{compose.Attachment{Filename: "a.png"}, "image/png"},
		{compose.Attachment{Filename: "a.unknownext"}, "application/octet-stream"},
		{compose.Attachment{Filename: "noext"}, "application/octet-stream"},
		{compose.Attachment{Filename: "a.pdf", ContentType: "text/csv"}, "text/csv"},
	}
	for _, tt := range tests {
		t.Run(tt.att.Filename, func(t *testing.T) {
			if got := AttachmentContentType(tt.att); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
