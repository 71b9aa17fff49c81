package mimemsg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ParsedMessage holds the parts extracted from a raw message.
type ParsedMessage struct {
	Subject     string
	Headers     mail.Header
	TextBody    string
	HTMLBody    string
	Attachments []ParsedAttachment
}

// ParsedAttachment is a decoded non-body MIME part.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

var wordDecoder = new(mime.WordDecoder)

// Parse reads a raw message. Single-part bodies go to TextBody or HTMLBody by
// Content-Type; multipart bodies are walked recursively.
func Parse(raw []byte) (*ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mimemsg: read message: %w", err)
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := wordDecoder.DecodeHeader(subject); err == nil {
		subject = decoded
	}

	parsed := &ParsedMessage{
		Headers: msg.Header,
		Subject: subject,
	}

	contentType := msg.Header.Get("Content-Type")
	transferEncoding := msg.Header.Get("Content-Transfer-Encoding")

	if contentType == "" {
		body, err := readBody(msg.Body, transferEncoding)
		if err != nil {
			return nil, fmt.Errorf("mimemsg: read body: %w", err)
		}
		parsed.TextBody = string(body)
		return parsed, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("mimemsg: parse Content-Type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("mimemsg: multipart message missing boundary")
		}
		if err := walkMultipart(msg.Body, boundary, parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	}

	body, err := readBody(msg.Body, transferEncoding)
	if err != nil {
		return nil, fmt.Errorf("mimemsg: read body: %w", err)
	}
	if mediaType == "text/html" {
		parsed.HTMLBody = string(body)
	} else {
		parsed.TextBody = string(body)
	}
	return parsed, nil
}

func walkMultipart(r io.Reader, boundary string, parsed *ParsedMessage) error {
	mr := multipart.NewReader(r, boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mimemsg: read next part: %w", err)
		}

		mediaType := "text/plain"
		var params map[string]string
		if ct := part.Header.Get("Content-Type"); ct != "" {
			mediaType, params, err = mime.ParseMediaType(ct)
			if err != nil {
				mediaType = defaultAttachCT
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if nested := params["boundary"]; nested != "" {
				if err := walkMultipart(part, nested, parsed); err != nil {
					return err
				}
			}
			continue
		}

		body, err := readBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("mimemsg: read part body: %w", err)
		}

		filename, isAttachment := disposition(part, params)
		switch {
		case !isAttachment && mediaType == "text/plain" && parsed.TextBody == "":
			parsed.TextBody = string(body)
		case !isAttachment && mediaType == "text/html" && parsed.HTMLBody == "":
			parsed.HTMLBody = string(body)
		default:
			parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     body,
			})
		}
	}
}

// disposition returns the part's filename and whether it is marked as an
// attachment.
func disposition(part *multipart.Part, params map[string]string) (string, bool) {
	var filename string
	var attachment bool
	if d := part.Header.Get("Content-Disposition"); d != "" {
		dispType, dispParams, err := mime.ParseMediaType(d)
		if err == nil {
			filename = dispParams["filename"]
			attachment = strings.EqualFold(dispType, "attachment")
		}
	}
	if filename == "" {
		filename = params["name"]
	}
	return filename, attachment
}

func readBody(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
