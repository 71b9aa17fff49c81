package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sungwon/mailrelay/internal/compose"
	"github.com/sungwon/mailrelay/internal/delivery"
	"github.com/sungwon/mailrelay/internal/mailer"
)

type fakeMailer struct {
	sendFn func(ctx context.Context, req compose.Request) (*delivery.Result, error)
	bulkFn func(ctx context.Context, req mailer.BulkRequest) ([]mailer.BulkResult, error)

	lastSend compose.Request
}

func (f *fakeMailer) Send(ctx context.Context, req compose.Request) (*delivery.Result, error) {
	f.lastSend = req
	return f.sendFn(ctx, req)
}

func (f *fakeMailer) SendBulk(ctx context.Context, req mailer.BulkRequest) ([]mailer.BulkResult, error) {
	return f.bulkFn(ctx, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestSendEmailHandler_Success(t *testing.T) {
	m := &fakeMailer{sendFn: func(context.Context, compose.Request) (*delivery.Result, error) {
		return &delivery.Result{Success: true, MessageID: "<1.abc@example.org>", Accepted: []string{"a@example.org"}}, nil
	}}

	body := `{"to":"a@example.org","cc":"c@example.org","subject":"Hi","text":"Hello"}`
	req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(body))
	rec := httptest.NewRecorder()

	SendEmailHandler(m).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["success"] != true {
		t.Errorf("expected success true, got %v", resp["success"])
	}
	if resp["messageId"] != "<1.abc@example.org>" {
		t.Errorf("unexpected messageId %v", resp["messageId"])
	}
	if rejected, ok := resp["rejected"].([]interface{}); !ok || len(rejected) != 0 {
		t.Errorf("expected empty rejected array, got %v", resp["rejected"])
	}
	if len(m.lastSend.CC) != 1 || m.lastSend.CC[0] != "c@example.org" {
		t.Errorf("expected single cc string decoded as list, got %v", m.lastSend.CC)
	}
}

func TestSendEmailHandler_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		result    *delivery.Result
		err       error
		wantError string
	}{
		{
			name:      "malformed json",
			body:      `{"to":`,
			wantError: "invalid JSON body",
		},
		{
			name:      "missing fields",
			body:      `{"to":"a@example.org"}`,
			err:       compose.ErrMissingFields,
			wantError: compose.ErrMissingFields.Error(),
		},
		{
			name:      "invalid recipient",
			body:      `{"to":"test@test.com","subject":"s","text":"t"}`,
			err:       &compose.ValidationError{Address: "test@test.com", Reason: compose.ReasonInvalidAddress},
			wantError: "invalid email address: test@test.com",
		},
		{
			name:      "wrapped content rejection",
			body:      `{"to":"a@example.org","subject":"s","text":"t"}`,
			err:       fmt.Errorf("compose: %w", compose.ErrContentRejected),
			wantError: compose.ErrContentRejected.Error(),
		},
		{
			name:      "delivery failure keeps relay text",
			body:      `{"to":"a@example.org","subject":"s","text":"t"}`,
			result:    &delivery.Result{Success: false, Error: "550 5.1.1 mailbox unavailable"},
			wantError: "550 5.1.1 mailbox unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMailer{sendFn: func(context.Context, compose.Request) (*delivery.Result, error) {
				return tt.result, tt.err
			}}
			req := httptest.NewRequest(http.MethodPost, "/send-email", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			SendEmailHandler(m).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			resp := decodeBody(t, rec)
			if resp["success"] != false {
				t.Errorf("expected success false, got %v", resp["success"])
			}
			if resp["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, resp["error"])
			}
		})
	}
}

func TestSendBulkHandler(t *testing.T) {
	m := &fakeMailer{bulkFn: func(_ context.Context, req mailer.BulkRequest) ([]mailer.BulkResult, error) {
		var emails []json.RawMessage
		if err := json.Unmarshal(req.Emails, &emails); err != nil {
			return nil, mailer.ErrBulkNotArray
		}
		return []mailer.BulkResult{
			{Email: "a@example.org", Success: true, MessageID: "<1@x>"},
			{Email: "bad", Success: false, Error: "invalid email address: bad"},
		}, nil
	}}

	body := `{"emails":[{"to":"a@example.org"},{"to":"bad"}],"template":{"subject":"s","text":"t"}}`
	req := httptest.NewRequest(http.MethodPost, "/send-bulk", strings.NewReader(body))
	rec := httptest.NewRecorder()

	SendBulkHandler(m, 0).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 with partial failures, got %d", rec.Code)
	}
	var resp struct {
		Results []mailer.BulkResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[1].Success || resp.Results[1].Error == "" {
		t.Errorf("expected second entry to carry its error, got %+v", resp.Results[1])
	}
}

func TestSendBulkHandler_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"not an array", `{"emails":"a@example.org"}`, mailer.ErrBulkNotArray},
		{"too many", `{"emails":[]}`, fmt.Errorf("%w: maximum is 10", mailer.ErrBulkTooLarge)},
		{"malformed json", `{"emails":[`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			m := &fakeMailer{bulkFn: func(context.Context, mailer.BulkRequest) ([]mailer.BulkResult, error) {
				called = true
				return nil, tt.err
			}}
			req := httptest.NewRequest(http.MethodPost, "/send-bulk", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			SendBulkHandler(m, 0).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			resp := decodeBody(t, rec)
			if tt.err != nil && resp["error"] != tt.err.Error() {
				t.Errorf("expected error %q, got %v", tt.err.Error(), resp["error"])
			}
			if tt.err == nil && called {
				t.Error("expected malformed body to be rejected before the mailer runs")
			}
		})
	}
}

func TestSendErrorMessage_Unknown(t *testing.T) {
	if got := sendErrorMessage(errors.New("boom")); got != "boom" {
		t.Errorf("expected raw error text, got %q", got)
	}
}
