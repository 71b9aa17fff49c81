package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/aws/smithy-go"
	gosmtp "github.com/emersion/go-smtp"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      int
		wantPermanent bool
	}{
		{
			name:          "smtp 550 is permanent",
			err:           &gosmtp.SMTPError{Code: 550, Message: "User unknown"},
			wantCode:      550,
			wantPermanent: true,
		},
		{
			name:          "smtp 451 is transient",
			err:           &gosmtp.SMTPError{Code: 451, Message: "Try again later"},
			wantCode:      451,
			wantPermanent: false,
		},
		{
			name:          "wrapped smtp error",
			err:           fmt.Errorf("data: %w", &gosmtp.SMTPError{Code: 554, Message: "Message rejected"}),
			wantCode:      554,
			wantPermanent: true,
		},
		{
			name:          "ses message rejected",
			err:           &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."},
			wantPermanent: true,
		},
		{
			name:          "ses throttling",
			err:           &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded."},
			wantPermanent: false,
		},
		{
			name:          "deadline exceeded",
			err:           fmt.Errorf("dial: %w", context.DeadlineExceeded),
			wantPermanent: false,
		},
		{
			name:          "network error",
			err:           &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			wantPermanent: false,
		},
		{
			name:          "unknown error with permanent indicator",
			err:           errors.New("recipient rejected by policy"),
			wantPermanent: true,
		},
		{
			name:          "unknown error",
			err:           errors.New("something odd happened"),
			wantPermanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := ClassifyError("smtp", tt.err)
			if te == nil {
				t.Fatal("expected non-nil TransportError")
			}
			if te.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, te.Code)
			}
			if te.Permanent != tt.wantPermanent {
				t.Errorf("expected permanent=%v, got %v", tt.wantPermanent, te.Permanent)
			}
			if te.Error() != tt.err.Error() {
				t.Errorf("expected verbatim message %q, got %q", tt.err.Error(), te.Error())
			}
			if !errors.Is(te, tt.err) {
				t.Error("expected TransportError to unwrap to the original error")
			}
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if ClassifyError("smtp", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestClassifyError_AlreadyClassified(t *testing.T) {
	orig := &TransportError{Transport: "ses", Message: "x", Permanent: true}
	if got := ClassifyError("smtp", fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Error("expected existing TransportError to be returned as is")
	}
}

func TestIsPermanentIsTransient(t *testing.T) {
	perm := &TransportError{Permanent: true}
	trans := &TransportError{Permanent: false}
	plain := errors.New("plain")

	if !IsPermanent(perm) || IsTransient(perm) {
		t.Error("permanent error misclassified")
	}
	if IsPermanent(trans) || !IsTransient(trans) {
		t.Error("transient error misclassified")
	}
	if IsPermanent(plain) || !IsTransient(plain) {
		t.Error("unknown errors should be transient")
	}
	if Class(perm) != "permanent" || Class(plain) != "transient" {
		t.Error("unexpected class labels")
	}
}
