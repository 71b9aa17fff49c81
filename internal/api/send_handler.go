package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sungwon/mailrelay/internal/compose"
	"github.com/sungwon/mailrelay/internal/delivery"
	"github.com/sungwon/mailrelay/internal/logger"
	"github.com/sungwon/mailrelay/internal/mailer"
)

// Mailer runs the send pipeline behind the HTTP handlers.
type Mailer interface {
	Send(ctx context.Context, req compose.Request) (*delivery.Result, error)
	SendBulk(ctx context.Context, req mailer.BulkRequest) ([]mailer.BulkResult, error)
}

// sendResponse is the body of a successful POST /send-email.
type sendResponse struct {
	Success   bool     `json:"success"`
	MessageID string   `json:"messageId"`
	Accepted  []string `json:"accepted"`
	Rejected  []string `json:"rejected"`
}

// bulkResponse is the body of POST /send-bulk.
type bulkResponse struct {
	Results []mailer.BulkResult `json:"results"`
}

// SendEmailHandler handles POST /send-email.
// Returns 200 with the delivery result, or 400 with the failure reason for
// malformed bodies, invalid recipients, rejected content and failed delivery.
func SendEmailHandler(m Mailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req compose.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("invalid send request body")
			respondError(w, http.StatusBadRequest, decodeErrorMessage(err))
			return
		}

		res, err := m.Send(r.Context(), req)
		if err != nil {
			log.Warn().Err(err).Str("to", req.To).Msg("send rejected")
			respondError(w, http.StatusBadRequest, sendErrorMessage(err))
			return
		}
		if !res.Success {
			log.Error().Str("to", req.To).Str("error", res.Error).Msg("delivery failed")
			respondError(w, http.StatusBadRequest, res.Error)
			return
		}

		respondJSON(w, http.StatusOK, sendResponse{
			Success:   true,
			MessageID: res.MessageID,
			Accepted:  nonNil(res.Accepted),
			Rejected:  nonNil(res.Rejected),
		})
	}
}

// SendBulkHandler handles POST /send-bulk.
// Returns 400 when emails is not an array or is too long; otherwise 200
// with one result per entry, in input order. A positive writeTimeout
// replaces the server write deadline for the request, since a full batch
// is sent sequentially with a pause between entries.
func SendBulkHandler(m Mailer, writeTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if writeTimeout > 0 {
			rc := http.NewResponseController(w)
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				log.Warn().Err(err).Msg("failed to extend write deadline")
			}
		}

		var req mailer.BulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("invalid bulk request body")
			respondError(w, http.StatusBadRequest, decodeErrorMessage(err))
			return
		}

		results, err := m.SendBulk(r.Context(), req)
		if err != nil {
			log.Warn().Err(err).Msg("bulk request rejected")
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		respondJSON(w, http.StatusOK, bulkResponse{Results: results})
	}
}

// NotFoundHandler answers unknown routes with a JSON 404.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	}
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func sendErrorMessage(err error) string {
	var verr *compose.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, compose.ErrContentRejected):
		return compose.ErrContentRejected.Error()
	default:
		return err.Error()
	}
}

func decodeErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "request body too large"
	}
	return "invalid JSON body"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
