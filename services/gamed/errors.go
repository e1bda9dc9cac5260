package gamed

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	nativecommon "savingsgame/native/common"
	"savingsgame/native/savings"
	"savingsgame/observability"
	"savingsgame/services/gamed/archive"
	"savingsgame/services/gamed/middleware"
)

var (
	errDevMintDisabled = errors.New("gamed: dev mint disabled")
	errMintCapExceeded = errors.New("gamed: mint amount above cap")
	errBadRequest      = errors.New("gamed: bad request")
	errArchiveDisabled = errors.New("gamed: event archive not configured")
	// ErrYieldSourceLost is returned when a persisted game holds principal
	// but the in-process yield source starts empty.
	ErrYieldSourceLost = errors.New("gamed: yield source state lost; restart requires a fresh data dir")
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps engine error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch savings.KindOf(err) {
	case savings.KindValidation:
		return http.StatusBadRequest
	case savings.KindState, savings.KindDuplicate:
		return http.StatusConflict
	case savings.KindAuthorization:
		return http.StatusForbidden
	case savings.KindExternalCall:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, errMintCapExceeded):
		return http.StatusBadRequest
	case errors.Is(err, errDevMintDisabled), errors.Is(err, errArchiveDisabled):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrChainBroken):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded), errors.Is(err, nativecommon.ErrQuotaAmountExceeded):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, route string, err error) {
	status := statusFor(err)
	kind := string(savings.KindOf(err))
	observability.API().RecordError(route, status, kind)
	if status == http.StatusTooManyRequests {
		observability.API().RecordThrottle(route, "quota_exceeded")
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("route", route),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()))
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{
		Error:     message,
		Kind:      kind,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
