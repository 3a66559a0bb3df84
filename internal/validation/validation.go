// Package validation provides request validation for the scoring API.
package validation

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxWalletLength bounds the :address path parameter. Wallet identifiers are
// usually 0x-prefixed hex but the pipeline treats others as opaque keys.
const MaxWalletLength = 128

// RequestSizeMiddleware limits request body size. Reads past the limit fail
// with *http.MaxBytesError.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from an oversized request body.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// SanitizeString trims whitespace, strips null bytes, and truncates to maxLen.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// NonNegativeInt checks that value, when present, parses as an integer >= 0.
func NonNegativeInt(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return &ValidationError{Field: field, Message: "must be a non-negative integer"}
		}
		return nil
	}
}

// WalletParamMiddleware rejects empty or oversized :address parameters.
func WalletParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := strings.TrimSpace(c.Param("address"))
		if addr == "" || len(addr) > MaxWalletLength || strings.ContainsRune(addr, 0) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a non-empty wallet identifier",
			})
			return
		}
		c.Next()
	}
}
