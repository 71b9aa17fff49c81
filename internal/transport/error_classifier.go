package transport

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
	gosmtp "github.com/emersion/go-smtp"
)

// TransportError wraps a transport failure with classification metadata.
// Error returns the underlying transport's message unchanged.
type TransportError struct {
	// Transport is the name of the transport that failed.
	Transport string
	// Code is the SMTP reply code, or 0 when none applies.
	Code int
	// Message is the error text reported by the transport.
	Message string
	// Permanent indicates the error will not succeed if repeated.
	Permanent bool

	err error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// IsPermanent returns true if the error is a classified permanent failure.
func IsPermanent(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Permanent
	}
	return false
}

// IsTransient returns true if the error may succeed if repeated. Unknown
// errors are treated as transient.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return !te.Permanent
	}
	return true
}

// Class returns "permanent" or "transient" for metrics labels.
func Class(err error) string {
	if IsPermanent(err) {
		return "permanent"
	}
	return "transient"
}

// ClassifyError wraps err in a *TransportError. SMTP 5xx replies are
// permanent and 4xx transient; network errors and timeouts are transient;
// SES API errors are classified by error code.
func ClassifyError(transportName string, err error) *TransportError {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	te = &TransportError{
		Transport: transportName,
		Message:   err.Error(),
		err:       err,
	}

	var smtpErr *gosmtp.SMTPError
	var apiErr smithy.APIError
	var netErr net.Error

	switch {
	case errors.As(err, &smtpErr):
		te.Code = smtpErr.Code
		te.Permanent = smtpErr.Code >= 500 && smtpErr.Code < 600
	case errors.As(err, &apiErr):
		te.Permanent = isPermanentSESCode(apiErr.ErrorCode())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		te.Permanent = false
	case errors.As(err, &netErr):
		te.Permanent = false
	default:
		te.Permanent = containsPermanentIndicator(err.Error())
	}

	return te
}

func isPermanentSESCode(code string) bool {
	switch code {
	case "MessageRejected",
		"MailFromDomainNotVerified",
		"MailFromDomainNotVerifiedException",
		"ConfigurationSetDoesNotExist",
		"ConfigurationSetDoesNotExistException",
		"AccountSendingPausedException",
		"ConfigurationSetSendingPausedException",
		"AccessDenied",
		"AccessDeniedException",
		"InvalidClientTokenId",
		"SignatureDoesNotMatch":
		return true
	default:
		return false
	}
}

// containsPermanentIndicator checks whether an unclassified error message
// describes a failure that will not change if repeated.
func containsPermanentIndicator(msg string) bool {
	lower := strings.ToLower(msg)
	permanentPatterns := []string{
		"invalid recipient",
		"mailbox not found",
		"recipient rejected",
		"all recipients were rejected",
		"authentication failed",
		"invalid address",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
