package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// ErrorResponse writes a standardized error body with a stable machine code.
func ErrorResponse(c *fiber.Ctx, pe *PipelineError) error {
	body := fiber.Map{
		"error":   pe.Code,
		"message": pe.Message,
	}
	if pe.RetryAfter > 0 {
		seconds := int(pe.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		body["retryAfter"] = seconds
		c.Set("Retry-After", strconv.Itoa(seconds))
	}
	return c.Status(pe.Status).JSON(body)
}
