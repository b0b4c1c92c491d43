package client

import (
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScrambleNativePasswordEmptyPassword(t *testing.T) {
	require.Nil(t, scrambleNativePassword([]byte("12345678901234567890"), ""))
}

func TestScrambleNativePasswordMatchesMysqlAlgorithm(t *testing.T) {
	scramble := []byte("abcdefghijklmnopqrst")
	password := "s3cr3t"

	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2[:])
	want := h.Sum(nil)
	for i := range want {
		want[i] ^= stage1[i]
	}

	got := scrambleNativePassword(scramble, password)
	require.Equal(t, want, got)
}

func TestScrambleNativePasswordDependsOnScramble(t *testing.T) {
	a := scrambleNativePassword([]byte("aaaaaaaaaaaaaaaaaaaa"), "password")
	b := scrambleNativePassword([]byte("bbbbbbbbbbbbbbbbbbbb"), "password")
	require.NotEqual(t, a, b)
}

func TestScrambleSHA256PasswordEmptyPassword(t *testing.T) {
	require.Nil(t, scrambleSHA256Password([]byte("12345678901234567890"), ""))
}

func TestScrambleSHA256PasswordMatchesAlgorithm(t *testing.T) {
	scramble := []byte("abcdefghijklmnopqrst")
	password := "s3cr3t"

	stage1 := sha256.Sum256([]byte(password))
	stage2 := sha256.Sum256(stage1[:])

	h := sha256.New()
	h.Write(scramble)
	h.Write(stage2[:])
	want := h.Sum(nil)
	for i := range want {
		want[i] ^= stage1[i]
	}

	got := scrambleSHA256Password(scramble, password)
	require.Equal(t, want, got)
}
