package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	SecretLength   = 32
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// HashSecret is the one-way function applied to client secrets. It is
// deterministic so a presented secret can be looked up by its hash.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func GenerateSecret(n int) (string, error) {
	limit := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		b[i] = secretAlphabet[v.Int64()]
	}
	return string(b), nil
}
