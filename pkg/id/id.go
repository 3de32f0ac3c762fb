package id // import "autovader.dev/cmd/pkg/id"

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	letters      = "abcdefghijklmnopqrstuvwxyz"
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	all          = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	CanaryLen = 10
)

// Canary returns a fresh injection marker. It always starts with a letter
// so it survives contexts that reject leading digits (identifiers, tags).
func Canary() string {
	var sb strings.Builder

	sb.Grow(CanaryLen)
	sb.WriteByte(pick(letters))

	for i := 1; i < CanaryLen; i++ {
		sb.WriteByte(pick(alphanumeric))
	}

	return sb.String()
}

// IsCanary reports whether s has the shape produced by Canary.
func IsCanary(s string) bool {
	if len(s) != CanaryLen || !strings.ContainsRune(letters, rune(s[0])) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !strings.ContainsRune(alphanumeric, rune(s[i])) {
			return false
		}
	}
	return true
}

func Gen(n int) string {
	var sb strings.Builder

	sb.Grow(n)

	for range n {
		sb.WriteByte(pick(all))
	}

	return sb.String()
}

func pick(chars string) byte {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		panic("unexpected error: " + err.Error())
	}
	return chars[n.Int64()]
}
