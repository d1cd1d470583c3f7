package middleware

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Input validation and sanitization utilities

var (
	safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	personPattern = regexp.MustCompile(`^[\p{L}\p{M} .,'-]{1,120}$`)
	validate      = newValidate()
)

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("safeid", func(fl validator.FieldLevel) bool {
		return safeIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("person", func(fl validator.FieldLevel) bool {
		return personPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidationError lists offending fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate checks v's `validate` struct tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "safeid":
		return "must be alphanumeric, dash or underscore (max 64)"
	case "person":
		return "must contain letters, spaces and . , ' - only"
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}

// ValidateSessionID validates session id format
func ValidateSessionID(id string) error {
	if !safeIDPattern.MatchString(id) {
		return &ValidationError{Fields: map[string]string{"session_id": "must be alphanumeric, dash or underscore (max 64)"}}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	// drop control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
