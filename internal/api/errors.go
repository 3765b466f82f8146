package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// Error codes returned in errorResponse.Error.
const (
	codeInvalidRequest      = "InvalidRequest"
	codeInvalidRange        = "InvalidRange"
	codeNotFound            = "NotFound"
	codeInactiveProduct     = "InactiveProduct"
	codeInsufficientStock   = "InsufficientStock"
	codeInvalidTransition   = "InvalidTransition"
	codeConcurrencyConflict = "ConcurrencyConflict"
	codeInternalError       = "InternalError"
)

type errorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Details           any    `json:"details,omitempty"`
	AvailableQuantity *int   `json:"availableQuantity,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type shortfallDetails struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "datetime":
		return "Must be a date formatted " + e.Param()
	default:
		return "Invalid value"
	}
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged and reported without their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	var shortfall *domain.InsufficientStockError

	switch {
	case errors.As(err, &verrs):
		details := make([]fieldError, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, fieldError{Field: e.Field(), Message: validationMessage(e)})
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   codeInvalidRequest,
			Message: "Request validation failed",
			Details: details,
		})
	case errors.As(err, &shortfall):
		available := shortfall.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   codeInsufficientStock,
			Message: "Not enough units are free for the requested dates",
			Details: shortfallDetails{
				ProductID: shortfall.ProductID.String(),
				Requested: shortfall.Requested,
				Available: shortfall.Available,
			},
			AvailableQuantity: &available,
		})
	case errors.Is(err, domain.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRange, Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest, Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: codeNotFound, Message: err.Error()})
	case errors.Is(err, domain.ErrInactiveProduct):
		writeJSON(w, http.StatusConflict, errorResponse{Error: codeInactiveProduct, Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: codeInvalidTransition, Message: err.Error()})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   codeConcurrencyConflict,
			Message: "The reservation could not be placed, please retry",
		})
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   codeInternalError,
			Message: "internal error",
		})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
