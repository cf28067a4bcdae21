package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	workspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	providerPattern  = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// MaxProviders caps a single request's provider list.
const MaxProviders = 20

// ValidateWorkspaceID validates workspace ID format
func ValidateWorkspaceID(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace ID cannot be empty")
	}
	if !workspacePattern.MatchString(ws) {
		return fmt.Errorf("invalid workspace ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateScanID validates scan ID format (uuid)
func ValidateScanID(scanID string) error {
	if scanID == "" {
		return fmt.Errorf("scan ID cannot be empty")
	}
	if _, err := uuid.Parse(scanID); err != nil {
		return fmt.Errorf("invalid scan ID format")
	}
	return nil
}

// NormalizeProviders lowercases, trims and dedupes a provider list, keeping order.
func NormalizeProviders(in []string) ([]string, error) {
	if len(in) > MaxProviders {
		return nil, fmt.Errorf("at most %d providers per scan", MaxProviders)
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		if !providerPattern.MatchString(p) {
			return nil, fmt.Errorf("invalid provider name %q", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 30 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
