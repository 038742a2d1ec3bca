package validators

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// report json/form names so clients see the field they sent
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form", "uri"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	validate.RegisterValidation("object_id", validateObjectID)
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Fields flattens the errors into the field -> message map the response helpers take.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, err := range v {
		if _, seen := out[err.Field]; !seen {
			out[err.Field] = err.Message
		}
	}
	return out
}

// ValidateStruct validates a struct and returns detailed errors
func ValidateStruct(s interface{}) ValidationErrors {
	var validationErrors ValidationErrors

	err := validate.Struct(s)
	if err != nil {
		fieldErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return ValidationErrors{{Field: "request", Message: err.Error()}}
		}
		for _, err := range fieldErrors {
			validationError := ValidationError{
				Field:   fieldPath(err),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: getErrorMessage(err),
			}
			validationErrors = append(validationErrors, validationError)
		}
	}

	return validationErrors
}

// fieldPath drops the top-level struct name: "EscortRequest.destination.lat" -> "destination.lat".
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return err.Field()
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		}
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "latitude":
		return "Latitude must be between -90 and 90"
	case "longitude":
		return "Longitude must be between -180 and 180"
	case "object_id":
		return "Invalid ID format"
	default:
		return fmt.Sprintf("Validation failed for %s", err.Field())
	}
}

// Custom validation functions
func validateObjectID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let required tag handle empty values
	}
	return IsValidObjectID(value)
}

func IsValidObjectID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func SanitizeInput(input string) string {
	// Remove HTML tags and trim whitespace
	cleaned := htmlTag.ReplaceAllString(input, "")
	return strings.TrimSpace(cleaned)
}
