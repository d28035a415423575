package middleware

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add adds a validation error.
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// WriteJSON writes the validation errors as JSON response.
func (v ValidationErrors) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(v)
}

var (
	accountIDRegex = regexp.MustCompile(`^[0-9]{1,20}$`)
	symbolRegex    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-/]{0,11}$`)
	codeRegex      = regexp.MustCompile(`^[0-9]{4,8}$`)
	lastFourRegex  = regexp.MustCompile(`^[0-9]{4}$`)
)

// ValidateAccountID checks that id looks like a brokerage account id.
func ValidateAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// ValidateSymbol checks that s looks like a ticker or CUSIP.
func ValidateSymbol(s string) bool {
	return symbolRegex.MatchString(s)
}

// ValidateCode checks that c looks like a one-time passcode.
func ValidateCode(c string) bool {
	return codeRegex.MatchString(c)
}

// ValidateLastFour checks that s is four digits.
func ValidateLastFour(s string) bool {
	return lastFourRegex.MatchString(s)
}

// ValidateRequired checks if a string is non-empty.
func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// SanitizeString trims whitespace and removes control characters.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
