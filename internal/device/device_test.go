package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKey(t *testing.T) {
	// sha256("ua-seed-1")
	got := DeriveKey([]byte("ua-seed-1"))
	assert.Len(t, got, KeyLength)
	assert.True(t, ValidKey(got))
	assert.Equal(t, got, DeriveKey([]byte("ua-seed-1")), "derivation must be deterministic")
	assert.NotEqual(t, got, DeriveKey([]byte("ua-seed-2")))
}

func TestDeriveKey_KnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		DeriveKey(nil))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		DeriveKey([]byte("abc")))
}

func TestMatches(t *testing.T) {
	k := DeriveKey([]byte("client"))
	assert.True(t, Matches(k, k))
	assert.False(t, Matches(k, DeriveKey([]byte("other"))))
	assert.False(t, Matches(k, ""))
	assert.False(t, Matches("", k))
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"derived", DeriveKey([]byte("x")), true},
		{"empty", "", false},
		{"short", "abc", false},
		{"uppercase", strings.ToUpper(DeriveKey([]byte("x"))), false},
		{"non hex", strings.Repeat("z", KeyLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKey(tt.in))
		})
	}
}
