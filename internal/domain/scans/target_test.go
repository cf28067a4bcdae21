package scans

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name  string
		typ   TargetType
		value string
		ok    bool
	}{
		{"username", TargetUsername, "alice_01", true},
		{"username with space", TargetUsername, "alice bob", false},
		{"email", TargetEmail, "a@example.com", true},
		{"email without tld", TargetEmail, "a@localhost", false},
		{"email display name", TargetEmail, "Bob <a@example.com>", false},
		{"phone", TargetPhone, "+628123456789", true},
		{"phone letters", TargetPhone, "+62abc", false},
		{"domain", TargetDomain, "sub.example.co.id", true},
		{"domain with path", TargetDomain, "example.com/x", false},
		{"empty", TargetEmail, "", false},
		{"too long", TargetUsername, strings.Repeat("a", 256), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.typ, tt.value)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, CodeInvalidTarget, ve.Code)
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "alice", NormalizeTarget(TargetUsername, " @alice "))
	assert.Equal(t, "a@example.com", NormalizeTarget(TargetEmail, "A@Example.com"))
	assert.Equal(t, "+628123456789", NormalizeTarget(TargetPhone, "+62 812-345 (6789)"))
}
