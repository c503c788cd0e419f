package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagDocID        = "docid"        // Document id usable inside a vector store filter expression
	TagNoWhitespace = "nowhitespace" // No whitespace characters
	TagTrimmed      = "trimmed"      // No leading/trailing spaces
	TagPDFPath      = "pdfpath"      // Path ending in .pdf
)

var docIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagDocID, validateDocID)
	_ = v.validate.RegisterValidation(TagNoWhitespace, validateNoWhitespace)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
	_ = v.validate.RegisterValidation(TagPDFPath, validatePDFPath)
}

// validateDocID rejects ids containing quotes or spaces, which would break store filters.
func validateDocID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return docIDRegex.MatchString(value)
}

func validateNoWhitespace(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
}

func validateTrimmed(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == strings.TrimSpace(value)
}

func validatePDFPath(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(value), ".pdf")
}

// IsDocID reports whether s is an acceptable document id.
func IsDocID(s string) bool {
	return docIDRegex.MatchString(s)
}
