package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxBodyBytes bounds request bodies; the largest is a 2000 character message
const maxBodyBytes = 64 << 10

type normalizer interface {
	Normalize()
}

// decode reads a JSON body into dst and validates it
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation("Invalid request body")
	}
	if n, ok := dst.(normalizer); ok {
		n.Normalize()
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return domain.ErrValidation("Invalid request")
	}

	e := validationErrors[0]
	field := e.Field()
	switch e.Tag() {
	case "required":
		return domain.ErrValidation("%s is required", field)
	case "email":
		return domain.ErrValidation("Invalid email format")
	case "uuid":
		return domain.ErrValidation("%s must be a valid id", field)
	case "min":
		return domain.ErrValidation("%s must be at least %s characters", field, e.Param())
	case "max":
		return domain.ErrValidation("%s must be at most %s characters", field, e.Param())
	default:
		return domain.ErrValidation("%s is invalid", field)
	}
}
