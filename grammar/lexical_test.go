package grammar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuoted(t *testing.T) {
	out, err := ParseQuoted(`"This is a test"`)
	require.NoError(t, err)
	assert.Equal(t, "This is a test", out)
}

func TestParseQuoted_EscapedQuote(t *testing.T) {
	out, err := ParseQuoted(`"say \"hi\""`)
	require.NoError(t, err)
	assert.Equal(t, `say "hi"`, out)
}

func TestParseQuoted_LoneBackslashIsLiteral(t *testing.T) {
	out, err := ParseQuoted(`"a\b"`)
	require.NoError(t, err)
	assert.Equal(t, `a\b`, out)
}

func TestParseQuoted_Unterminated(t *testing.T) {
	_, err := ParseQuoted(`"never closed`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))

	var syn *SyntaxError
	require.True(t, errors.As(err, &syn))
	assert.Equal(t, len(`"never closed`), syn.Offset)
}

func TestParseToken(t *testing.T) {
	out, err := ParseToken("asdf-asdf")
	require.NoError(t, err)
	assert.Equal(t, "asdf-asdf", out)
}

func TestParseToken_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "space", input: "asdf asdf"},
		{name: "empty", input: ""},
		{name: "slash", input: "a/b"},
		{name: "period", input: "a.b"},
		{name: "control", input: "a\x1fb"},
		{name: "del", input: "a\x7fb"},
		{name: "leading tspecial", input: "=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.input)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestIsTokenChar(t *testing.T) {
	for c := 0; c < 0x100; c++ {
		b := byte(c)
		want := c > 0x20 && c != 0x7f
		for i := 0; i < len(tspecials); i++ {
			if tspecials[i] == b {
				want = false
			}
		}
		assert.Equal(t, want, isTokenChar(b), "byte 0x%02x", c)
	}
}

func TestTokenOrQuoted_OrderedChoice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantAt int
	}{
		{name: "unquoted with tspecials", input: "asdf:/testvalue", want: "asdf:/testvalue", wantAt: 15},
		{name: "quoted", input: `"a;b"`, want: "a;b", wantAt: 5},
		{name: "unquoted stops at quote", input: `ab"cd"`, want: "ab", wantAt: 2},
		{name: "unquoted stops at semicolon", input: "utf-8;type=x", want: "utf-8", wantAt: 5},
		{name: "trailing blanks dropped", input: "utf-8  ", want: "utf-8", wantAt: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScanner(tt.input)
			got, err := sc.tokenOrQuoted()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAt, sc.at)
		})
	}
}

func TestTokenOrQuoted_NothingToRead(t *testing.T) {
	sc := newScanner(";next")
	_, err := sc.tokenOrQuoted()
	assert.ErrorIs(t, err, ErrSyntax)
}
