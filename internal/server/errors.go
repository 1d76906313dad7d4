package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/resilience"
)

// HTTPStatus returns the status code for a classified error kind.
func HTTPStatus(kind resilience.Kind) int {
	switch kind {
	case resilience.KindValidation:
		return http.StatusBadRequest
	case resilience.KindAuth:
		return http.StatusUnauthorized
	case resilience.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case resilience.KindContentRejected:
		return http.StatusUnprocessableEntity
	case resilience.KindModelNotFound:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string          `json:"error"`
	Kind  resilience.Kind `json:"kind,omitempty"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding json response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorResponse{Error: message})
}

// failResponse replies with the user message of a classified error.
func (s *Server) failResponse(w http.ResponseWriter, err error) {
	classified := resilience.Classify(err)
	s.jsonResponse(w, HTTPStatus(classified.Kind), ErrorResponse{
		Error: classified.UserMessage(),
		Kind:  classified.Kind,
	})
}

// validationMessage renders the first validator failure.
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Namespace(), ve.Tag())
	}
	return "validation error: invalid request"
}
