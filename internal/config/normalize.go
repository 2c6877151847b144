package config

import (
	"regexp"
	"strings"
)

const DefaultNetwork = "mainnet"

var (
	validNetworkRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	invalidChars   = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash    = regexp.MustCompile(`^-+`)
	trailingDash   = regexp.MustCompile(`-+$`)
)

// NormalizeNetwork converts a user-provided network name into the form used
// in chain ids ("hathor:<network>"):
//   - a "hathor:" prefix is stripped
//   - lowercase, max 32 chars
//   - only [a-z0-9_-] allowed, invalid chars replaced with "-"
//   - empty result defaults to "mainnet"
func NormalizeNetwork(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	trimmed = strings.TrimPrefix(trimmed, "hathor:")
	if trimmed == "" {
		return DefaultNetwork
	}
	if validNetworkRe.MatchString(trimmed) {
		return trimmed
	}

	result := invalidChars.ReplaceAllString(trimmed, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 32 {
		result = result[:32]
	}
	if result == "" {
		return DefaultNetwork
	}
	return result
}

// ChainID returns the CAIP-2 style chain id for a network.
func ChainID(network string) string {
	return "hathor:" + NormalizeNetwork(network)
}
