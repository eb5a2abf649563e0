package service

import (
	"strings"

	"github.com/google/uuid"
)

// shortID returns prefix followed by 8 upper-case hex characters.
func shortID(prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
