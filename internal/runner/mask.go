package runner

import (
	"regexp"
	"strings"
)

const (
	maskPlaceholder = "***"
	// MinOutputSecretLength is the shortest secret masked in relayed command output.
	// Shorter values also match ordinary words and would garble the text.
	MinOutputSecretLength = 6
)

var (
	passwordFlagPattern  = regexp.MustCompile(`(--password[=\s]+)[^\s]+`)
	passwordValuePattern = regexp.MustCompile(`(password[=:]["']?)[^"'>\s]+`)
)

// Masker replaces known secret values in text before it is logged or echoed.
type Masker struct {
	secrets []string
}

// NewMasker returns a Masker for the given secret values. Empty values are ignored.
func NewMasker(secrets ...string) Masker {
	var m Masker
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			m.secrets = append(m.secrets, s)
		}
	}
	return m
}

// Mask replaces every occurrence of a secret value.
func (m Masker) Mask(text string) string {
	for _, s := range m.secrets {
		text = strings.ReplaceAll(text, s, maskPlaceholder)
	}
	return text
}

// MaskOutput masks secrets in text relayed to a client. Secrets shorter than
// MinOutputSecretLength are left in place.
func (m Masker) MaskOutput(text string) string {
	for _, s := range m.secrets {
		if len(s) < MinOutputSecretLength {
			continue
		}
		text = strings.ReplaceAll(text, s, maskPlaceholder)
	}
	return text
}

// MaskCommand masks secret values and password-bearing command fragments.
func (m Masker) MaskCommand(text string) string {
	text = m.Mask(text)
	text = passwordFlagPattern.ReplaceAllString(text, "${1}"+maskPlaceholder)
	text = passwordValuePattern.ReplaceAllString(text, "${1}"+maskPlaceholder)
	return text
}
