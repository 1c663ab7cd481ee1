package cache

import "strings"

// keyPrefix namespaces engine entries in shared backing stores.
const keyPrefix = "wallet:"

// NormalizeKey produces the canonical cache key for a wallet identifier.
// Wallet addresses are case-insensitive hex, so comparison is done on the
// trimmed, lower-cased form. Callers are responsible for passing stable
// identifiers; normalization only removes accidental variation.
//
// Example:
//
//	NormalizeKey("  0xAbC123 ") == "wallet:0xabc123"
func NormalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if strings.HasPrefix(k, keyPrefix) {
		return k
	}
	return keyPrefix + k
}

// NormalizeKeys normalizes a list of wallet identifiers, preserving order.
func NormalizeKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = NormalizeKey(k)
	}
	return out
}
