package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
)

var ErrInvalidPayload = apperr.New(apperr.InvalidInput, "invalid request payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into dst and validates it. When it returns false
// a 400 response has already been written.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("httpx: failed to decode request body")
		RespondError(w, apperr.Wrap(err, ErrInvalidPayload.Kind, ErrInvalidPayload.Message))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondValidation(w, formatValidationErrors(validationErrors))
			return false
		}
		hlog.FromRequest(r).Error().Err(err).Msg("httpx: unexpected error during validation")
		RespondError(w, err)
		return false
	}

	return true
}

// Validate runs struct validation outside of a request, e.g. for config.
func Validate(v any) error {
	return validate.Struct(v)
}

func formatValidationErrors(errs validator.ValidationErrors) []string {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		details = append(details, describeFieldError(fe))
	}
	return details
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", field)
	case "email":
		return fmt.Sprintf("Field '%s' must be a valid email address", field)
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("Field '%s' must contain at least %s elements", field, fe.Param())
		}
		return fmt.Sprintf("Field '%s' must be at least %s characters long", field, fe.Param())
	case "gt":
		return fmt.Sprintf("Field '%s' must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("Field '%s' must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", field, fe.Param())
	case "uuid4", "uuid":
		return fmt.Sprintf("Field '%s' must be a valid UUID", field)
	default:
		return fmt.Sprintf("Field '%s' failed on the '%s' rule", field, fe.Tag())
	}
}
