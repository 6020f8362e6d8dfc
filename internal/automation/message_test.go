package automation

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMessage_NamedVariables(t *testing.T) {
	out := FormatMessage("Hello {user}, welcome to {guild}!", map[string]any{
		"user":  "Bob",
		"guild": "Testers",
	})
	assert.Equal(t, "Hello Bob, welcome to Testers!", out)
}

func TestFormatMessage_UnmatchedPlaceholderLeftVerbatim(t *testing.T) {
	out := FormatMessage("Hello {user}, you are {rank}", map[string]any{"user": "Bob"})
	assert.Equal(t, "Hello Bob, you are {rank}", out)
}

func TestFormatMessage_Random(t *testing.T) {
	for i := 0; i < 50; i++ {
		out := FormatMessage("roll: {random:1-100}", nil)
		n, err := strconv.Atoi(strings.TrimPrefix(out, "roll: "))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 100)
	}

	// A single-value range always yields that value.
	assert.Equal(t, "7", FormatMessage("{random:7-7}", nil))
}

func TestFormatMessage_Math(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"sum: {math:2+2}", "sum: 4"},
		{"{math:10-3*2}", "4"},
		{"{math:(10-3)*2}", "14"},
		{"{math:8/2}", "4"},
		{"{math: 1 + 2 }", "3"},
		// Failures leave the placeholder untouched.
		{"{math:1/0}", "{math:1/0}"},
		{"{math:2+}", "{math:2+}"},
		{"{math:evil()}", "{math:evil()}"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMessage(tt.template, nil))
		})
	}
}

func TestFormatMessage_DateBuiltins(t *testing.T) {
	out := FormatMessage("{date} {time} {timestamp}", nil)
	assert.NotContains(t, out, "{date}")
	assert.NotContains(t, out, "{time}")
	assert.NotContains(t, out, "{timestamp}")
}

func TestFormatMessage_NoReExpansion(t *testing.T) {
	// A variable value containing placeholder syntax is inserted literally.
	out := FormatMessage("{user}", map[string]any{"user": "{math:2+2}"})
	assert.Equal(t, "{math:2+2}", out)
}

func TestFormatMessage_CombinedSubstitutions(t *testing.T) {
	out := FormatMessage("Hello {user}, roll: {random:1-100}, sum: {math:2+2}", map[string]any{"user": "Bob"})

	require.True(t, strings.HasPrefix(out, "Hello Bob, roll: "))
	assert.Contains(t, out, "sum: 4")

	rest := strings.TrimPrefix(out, "Hello Bob, roll: ")
	rollStr, _, ok := strings.Cut(rest, ",")
	require.True(t, ok)
	roll, err := strconv.Atoi(rollStr)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, roll, 1)
	assert.LessOrEqual(t, roll, 100)
}
