package shared

import (
	"os"
	"strings"
)

const EnvBlockchainDebugMode = "BLOCKCHAIN_DEBUG_MODE"

// IsBlockchainDebugMode checks if blockchain debug mode is enabled via environment variable
func IsBlockchainDebugMode() bool {
	debugMode := os.Getenv(EnvBlockchainDebugMode)
	return strings.ToLower(debugMode) == "true" || strings.ToLower(debugMode) == "1"
}

// NormalizeIdentifier canonicalizes a phone-like user identifier: channel
// prefixes stripped, spaces and dashes removed.
func NormalizeIdentifier(identifier string) string {
	id := strings.TrimSpace(identifier)
	id = strings.TrimPrefix(id, "whatsapp:")
	id = strings.TrimPrefix(id, "tel:")
	id = strings.ReplaceAll(id, " ", "")
	id = strings.ReplaceAll(id, "-", "")
	return id
}
