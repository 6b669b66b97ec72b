// Package validation provides input validation middleware for the authorization API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// cardNumberRegex validates PAN length and digit content
	cardNumberRegex = regexp.MustCompile(`^[0-9]{12,19}$`)
	// accountIDRegex validates account identifiers
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	// categoryCodeRegex validates 4-digit merchant category codes
	categoryCodeRegex = regexp.MustCompile(`^[0-9]{4}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCardNumber checks PAN format: 12-19 digits with a valid Luhn check digit.
func IsValidCardNumber(pan string) bool {
	if !cardNumberRegex.MatchString(pan) {
		return false
	}
	return luhnValid(pan)
}

// IsValidCardFormat checks PAN shape only: 12-19 digits, no checksum.
func IsValidCardFormat(pan string) bool {
	return cardNumberRegex.MatchString(pan)
}

// luhnValid implements the Luhn mod-10 checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// IsValidAccountID checks if a string is a well-formed account identifier
func IsValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// IsValidCategoryCode checks if a string is a 4-digit category code
func IsValidCategoryCode(code string) bool {
	return categoryCodeRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// MaskCardNumber reduces a PAN to its last four digits for logs and responses.
func MaskCardNumber(pan string) string {
	if len(pan) <= 4 {
		return pan
	}
	return strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidCardNumber checks if a field is a well-formed PAN
func ValidCardNumber(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidCardNumber(value) {
			return &ValidationError{Field: field, Message: "must be 12-19 digits with a valid check digit"}
		}
		return nil
	}
}

// ValidCardFormat checks PAN shape without the Luhn checksum. The
// authorization path uses this form: a card that fails its check digit still
// gets a structured decision rather than a transport error.
func ValidCardFormat(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidCardFormat(value) {
			return &ValidationError{Field: field, Message: "must be 12-19 digits"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AccountParamMiddleware validates the :id URL parameter on account routes.
// Apply to route groups that include :id params to reject malformed
// identifiers early.
func AccountParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidAccountID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_account_id",
				"message": "account id must be 1-64 alphanumeric, dash or underscore characters",
			})
			return
		}
		c.Next()
	}
}

// ValidAmount checks if a value is a valid monetary amount: a positive
// decimal with at most two fractional digits.
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		decimalAt := -1
		hasNonZero := false
		for i, c := range value {
			if c == '.' {
				if decimalAt >= 0 {
					return &ValidationError{Field: field, Message: "invalid amount format"}
				}
				if i == 0 || i == len(value)-1 {
					return &ValidationError{Field: field, Message: "invalid amount format"}
				}
				decimalAt = i
				continue
			}
			if c < '0' || c > '9' {
				return &ValidationError{Field: field, Message: "invalid amount format"}
			}
			if c != '0' {
				hasNonZero = true
			}
		}
		if decimalAt >= 0 && len(value)-decimalAt-1 > 2 {
			return &ValidationError{Field: field, Message: "amount supports at most two decimal places"}
		}
		if !hasNonZero {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		return nil
	}
}
