package app

import (
	"crypto/rand"
	"strings"
)

// CodeLength is the number of characters in a join code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// largest multiple of len(codeAlphabet) that fits in a byte; bytes above it are rejected to keep
// every character equally likely.
const codeByteLimit = 256 - 256%len(codeAlphabet)

// GenerateCode returns a random join code of uppercase letters and digits.
func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(CodeLength)
	buf := make([]byte, CodeLength*2)
	for sb.Len() < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
			if sb.Len() == CodeLength {
				break
			}
		}
	}
	return sb.String(), nil
}

// NormalizeCode canonicalizes a human-entered join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
