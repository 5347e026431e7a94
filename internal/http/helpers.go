package http

import (
	"strconv"
	"strings"

	"shoplist/internal/core"
)

var invalidListID = core.Invalid("list_id", "must be a positive integer")

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims surrounding whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
