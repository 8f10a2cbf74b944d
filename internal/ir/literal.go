package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Typed literal suffixes. Canonical JSON and the plaintext format both carry
// integers this way, e.g. "10000u64" or "100u32".
const (
	SuffixU64 = "u64"
	SuffixU32 = "u32"
)

// U64 formats v as a u64 literal.
func U64(v uint64) string {
	return strconv.FormatUint(v, 10) + SuffixU64
}

// U32 formats v as a u32 literal.
func U32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10) + SuffixU32
}

// ParseU64 parses a u64 literal. The suffix is optional.
func ParseU64(s string) (uint64, error) {
	digits := strings.TrimSuffix(strings.TrimSpace(s), SuffixU64)
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid u64 literal %q: %w", s, err)
	}
	return v, nil
}

// ParseU32 parses a u32 literal. The suffix is optional.
func ParseU32(s string) (uint32, error) {
	digits := strings.TrimSuffix(strings.TrimSpace(s), SuffixU32)
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid u32 literal %q: %w", s, err)
	}
	return uint32(v), nil
}
