package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"1.2.3", []int{1, 2, 3}},
		{"v2.10.1", []int{2, 10, 1}},
		{"1.0-beta2", []int{1, 0, 2}},
		{"release-42", []int{42}},
		{"nightly", []int{0}},
		{"", []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, extractVersion(tt.in))
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b, op string
		want     bool
	}{
		{"v2.10.1", "2.9", ">=", true},
		{"2.9", "2.10", ">=", false},
		{"1.2", "1.2.0", "==", true},
		{"1.2", "1.2.1", "<", true},
		{"3.0", "2.99.99", ">", true},
		{"1.0", "1.0", "<=", true},
		{"1.0", "1.0", "~", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+tt.op+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b, tt.op))
		})
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies("2.1", ">=2.0"))
	assert.False(t, Satisfies("1.9", ">=2.0"))
	assert.True(t, Satisfies("1.9", "*"))
	assert.True(t, Satisfies("1.9", ""))
	assert.True(t, Satisfies("1.9", "1.9"))
	assert.False(t, Satisfies("1.9", "2.0"))
	assert.True(t, Satisfies("3.1", "<4"))
}
