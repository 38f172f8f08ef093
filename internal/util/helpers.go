package util

import (
	"sort"
	"strings"
)

// =============================================================================
// Host Validation Helpers
// =============================================================================

// IsInternalHost checks if a hostname is internal/unreachable from a public client.
func IsInternalHost(host string) bool {
	host = strings.ToLower(host)
	return strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") ||
		strings.HasSuffix(host, ".onion") ||
		strings.HasSuffix(host, ".localhost")
}

// IsLoopbackHost checks if a hostname resolves to localhost.
func IsLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		host == "[::1]"
}

// =============================================================================
// Tag Extraction Helpers
// =============================================================================

// GetTagValue returns the first value for the given tag name, or empty string if not found.
func GetTagValue(tags [][]string, tagName string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == tagName {
			return tag[1]
		}
	}
	return ""
}

// GetLastTagValue returns the last value for the given tag name, or empty string if not found.
// Reactions (NIP-25) point at their target with the last e-tag.
func GetLastTagValue(tags [][]string, tagName string) string {
	var result string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == tagName {
			result = tag[1]
		}
	}
	return result
}

// GetTagValues returns all values for the given tag name.
// Example: GetTagValues(tags, "p") returns all mentioned pubkeys.
func GetTagValues(tags [][]string, tagName string) []string {
	var results []string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == tagName {
			results = append(results, tag[1])
		}
	}
	return results
}

// =============================================================================
// Slice Utilities
// =============================================================================

// MapKeys returns all keys from a map as a slice.
// Order is not guaranteed (map iteration order).
func MapKeys[K comparable, V any](m map[K]V) []K {
	result := make([]K, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}

// SortedCopy returns a sorted copy of a string slice.
// The original slice is not modified.
func SortedCopy(slice []string) []string {
	if len(slice) == 0 {
		return nil
	}
	sorted := make([]string, len(slice))
	copy(sorted, slice)
	sort.Strings(sorted)
	return sorted
}

// Chunk splits items into consecutive slices of at most size elements.
// size <= 0 returns the whole slice as one chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// DedupStrings removes duplicates and empty strings, keeping first occurrence order.
func DedupStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		result = append(result, s)
	}
	return result
}
