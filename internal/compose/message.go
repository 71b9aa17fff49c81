// Package compose turns an inbound send request into an immutable, fully
// addressed message ready for delivery.
package compose

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request is the inbound shape of a single send.
type Request struct {
	To           string       `json:"to"`
	CC           AddressList  `json:"cc,omitempty"`
	BCC          AddressList  `json:"bcc,omitempty"`
	Subject      string       `json:"subject"`
	Text         string       `json:"text"`
	HTML         string       `json:"html,omitempty"`
	TemplateType string       `json:"templateType,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// AddressList is an ordered list of addresses. It decodes from either a JSON
// array of strings or a single string.
type AddressList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *AddressList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = AddressList{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("address list must be a string or an array of strings: %w", err)
	}
	*l = list
	return nil
}

// Attachment is passed through to the MIME builder without validation.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
	// Encoding describes Content: "base64", "hex", or empty for raw text.
	Encoding string `json:"encoding,omitempty"`
}

// Sender is the From identity of a composed message.
type Sender struct {
	Name    string
	Address string
}

// Header is a single extra header. Order is preserved when serialised.
type Header struct {
	Name  string
	Value string
}

// Tracking holds provider tracking switches. Both are always off.
type Tracking struct {
	Click bool
	Open  bool
}

// Message is the composed, transport-ready message. It is not modified after
// Compose returns.
type Message struct {
	From        Sender
	To          string
	CC          []string
	BCC         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
	Headers     []Header
	MessageID   string
	Tracking    Tracking
}

// Recipients returns the envelope recipients in to, cc, bcc order.
func (m *Message) Recipients() []string {
	rcpts := make([]string, 0, 1+len(m.CC)+len(m.BCC))
	rcpts = append(rcpts, m.To)
	rcpts = append(rcpts, m.CC...)
	rcpts = append(rcpts, m.BCC...)
	return rcpts
}

var (
	// ErrMissingFields is returned when to, subject or text is absent.
	ErrMissingFields = errors.New("missing required fields: to, subject, text")
	// ErrContentRejected is returned when the content screener rejects the
	// message. It deliberately carries no detail about which rule fired.
	ErrContentRejected = errors.New("email content flagged as potential spam")
)

// Validation failure reasons.
const (
	ReasonInvalidAddress = "invalid_address"
	ReasonDomainNotFound = "domain_not_found"
)

// ValidationError identifies the first recipient that failed validation.
type ValidationError struct {
	Address string
	Reason  string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonDomainNotFound:
		return "email domain does not exist: " + e.Address
	default:
		return "invalid email address: " + e.Address
	}
}
