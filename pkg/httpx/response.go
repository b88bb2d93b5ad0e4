// Package httpx holds the JSON envelope shared by every service and the
// helpers handlers use to decode requests and write responses.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

// Response is the tagged result every endpoint returns: either Success with
// Data, or a failure with Error describing the kind.
type Response[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Details []string    `json:"details,omitempty"`
}

func RespondJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("httpx: failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"kind":"internal","message":"failed to marshal response"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("httpx: failed to write JSON response")
	}
}

func RespondData[T any](w http.ResponseWriter, code int, data T, message string) {
	RespondJSON(w, code, Response[T]{Success: true, Data: data, Message: message})
}

// RespondError writes the kind and public message of err. The full error
// chain never reaches the client.
func RespondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	RespondJSON(w, apperr.HTTPStatus(kind), Response[any]{
		Error: &ErrorBody{Kind: kind, Message: apperr.Message(err)},
	})
}

func respondValidation(w http.ResponseWriter, details []string) {
	RespondJSON(w, http.StatusBadRequest, Response[any]{
		Error: &ErrorBody{Kind: apperr.InvalidInput, Message: "validation failed", Details: details},
	})
}
