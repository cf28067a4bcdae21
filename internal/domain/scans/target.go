package scans

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const MaxTargetLength = 255

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{6,15}$`)
	domainPattern   = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

// NormalizeTarget trims the value and strips formatting a user commonly types.
func NormalizeTarget(t TargetType, value string) string {
	v := strings.TrimSpace(value)
	switch t {
	case TargetUsername:
		v = strings.TrimPrefix(v, "@")
	case TargetEmail, TargetDomain:
		v = strings.ToLower(v)
	case TargetPhone:
		v = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(v)
	}
	return v
}

// ValidateTarget checks a normalized value against its type.
func ValidateTarget(t TargetType, value string) error {
	if value == "" {
		return Invalid(CodeInvalidTarget, "target value is required")
	}
	if utf8.RuneCountInString(value) > MaxTargetLength {
		return Invalid(CodeInvalidTarget, "target value must be at most %d characters", MaxTargetLength)
	}
	switch t {
	case TargetUsername:
		if !usernamePattern.MatchString(value) {
			return Invalid(CodeInvalidTarget, "invalid username %q", value)
		}
	case TargetEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
			return Invalid(CodeInvalidTarget, "invalid email address %q", value)
		}
	case TargetPhone:
		if !phonePattern.MatchString(value) {
			return Invalid(CodeInvalidTarget, "invalid phone number %q", value)
		}
	case TargetDomain:
		if !domainPattern.MatchString(value) {
			return Invalid(CodeInvalidTarget, "invalid domain %q", value)
		}
	default:
		return Invalid(CodeInvalidTarget, "unsupported target type %q", t)
	}
	return nil
}
