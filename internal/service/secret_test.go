package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	// sha256("secret")
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", HashSecret("secret"))
	assert.Equal(t, HashSecret("x"), HashSecret("x"))
	assert.NotEqual(t, HashSecret("x"), HashSecret("y"))
}

func TestGenerateSecret(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s, err := GenerateSecret(SecretLength)
		require.NoError(t, err)
		assert.Len(t, s, SecretLength)
		assert.Empty(t, strings.Trim(s, secretAlphabet))
		assert.False(t, seen[s])
		seen[s] = true
	}
}
