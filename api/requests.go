package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"potluck"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type createSessionRequest struct {
	Name         string   `json:"name" validate:"required"`
	Date         string   `json:"date" validate:"required"`
	HostID       string   `json:"hostId"`
	Participants []string `json:"participants" validate:"omitempty,dive,required"`
	Ingredients  []string `json:"ingredients"`
}

type participantsRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}

type ingredientsRequest struct {
	UserID      string   `json:"userId"`
	Ingredients []string `json:"ingredients" validate:"required,min=1"`
}

type generateRequest struct {
	Cuisine     string              `json:"cuisine"`
	Preferences potluck.Preferences `json:"preferences"`
}

// decode reads a JSON body into dst and validates it. Malformed JSON and
// failed rules both come back as validation errors.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return potluck.NewValidation("request body is required")
		}
		return potluck.NewValidation(fmt.Sprintf("invalid request body: %v", err))
	}
	return validateStruct(dst)
}

// decodeOptional is decode for endpoints where every field has a default.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return validateStruct(dst)
	}
	return decode(w, r, dst)
}

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, formatFieldError(e))
			}
			return potluck.NewValidation(strings.Join(msgs, "; "))
		}
		return potluck.NewValidation(err.Error())
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s entries", field, e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
