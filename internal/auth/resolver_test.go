package auth

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNameOr_TruncatesByRunes(t *testing.T) {
	long := strings.Repeat("ж", 100)

	got := displayNameOr(long, "u1")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxDisplayName, utf8.RuneCountInString(got))

	assert.Equal(t, "Анна", displayNameOr("  Анна ", "u1"))
	assert.Equal(t, "u1", displayNameOr("   ", "u1"))
}
