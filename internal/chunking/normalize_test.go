package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tabs and carriage returns", "a\t\tb\r\nc", "a b\nc"},
		{"trailing spaces before newline", "line one   \nline two", "line one\nline two"},
		{"many blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"blank lines with spaces", "a\n  \n \n\nb", "a\n\nb"},
		{"trim", "  \n\nhello\n\n  ", "hello"},
		{"keeps paragraph break", "a\n\nb", "a\n\nb"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"a\t \r\n\r\n\r\n b",
		" \n\n\n x \n",
		"one\n \n \n \ntwo\t\t\nthree",
		"  leading and trailing \t",
		"x\v\n\f\n\n\ny",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
