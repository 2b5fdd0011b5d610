package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// Short error codes carried in the "error" field of responses and frames.
const (
	codeUnauthenticated   = "unauthenticated"
	codeInvalidCredential = "invalid_credential"
	codeExpired           = "expired"
	codeEmptyMessage      = "empty_message"
	codeNotFound          = "not_found"
	codeValidation        = "validation"
	codePersistence       = "persistence"
	codeInternal          = "internal"
	codeInvalidFrame      = "invalid_frame"
	codeUnsupportedFrame  = "unsupported_frame"
)

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAuthError answers a rejected credential with 401.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Unauthorized: No token provided", Error: codeUnauthenticated})
	case errors.Is(err, common.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Invalid or expired token", Error: codeExpired})
	default:
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Invalid or expired token", Error: codeInvalidCredential})
	}
}

// errorCode maps service errors to short codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrEmptyMessage):
		return codeEmptyMessage
	case errors.Is(err, common.ErrorNotFound):
		return codeNotFound
	case errors.Is(err, common.ErrorValidation):
		return codeValidation
	case errors.Is(err, common.ErrPersistence):
		return codePersistence
	default:
		return codeInternal
	}
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Internal Server Error"})
}
