package tool

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GeneratePaymentReference returns a provider-safe transaction reference.
func GeneratePaymentReference(prefix string) string {
	id := strings.ReplaceAll(GenerateUUIDV7(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
