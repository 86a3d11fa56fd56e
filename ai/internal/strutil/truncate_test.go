package strutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 10, ""},
		{"short", "dark mode", 20, "dark mode"},
		{"exact", "dark", 4, "dark"},
		{"cut", "User prefers dark mode", 12, "User prefers..."},
		{"zero", "dark", 0, ""},
		{"negative", "dark", -3, ""},
		{"multibyte", "深色模式偏好", 4, "深色模式..."},
		{"emoji", "note 🎉 saved", 6, "note 🎉..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.input, tt.maxLen))
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 100)
	assert.Equal(t, strings.Repeat("a", previewLen)+"...", Preview(long))
	assert.Equal(t, "short", Preview("short"))
}
