package security

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
)

// MaxTextBytes bounds free text submitted for sentiment scoring
const MaxTextBytes = 64 << 10

// ValidateText rejects text that cannot be a feedback comment: oversized,
// invalid UTF-8 or carrying NUL bytes
func ValidateText(text string, maxBytes int) error {
	if maxBytes > 0 && len(text) > maxBytes {
		return fmt.Errorf("text exceeds maximum length of %d bytes", maxBytes)
	}
	if strings.Contains(text, "\x00") {
		return fmt.Errorf("text contains NUL bytes")
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("text is not valid UTF-8")
	}
	return nil
}

// RequireJSON rejects request bodies that are not declared as JSON.
// Bodyless requests pass through.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "application/json" {
			c.Error(errors.NewValidationError("Content-Type must be application/json", c.GetHeader("Content-Type")))
			c.Abort()
			return
		}

		c.Next()
	}
}
