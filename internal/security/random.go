package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// GenerateOTP returns a numeric one-time passcode of the given length.
// Each digit is drawn uniformly from 1-9.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("security: otp length must be positive")
	}
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(9))
		if err != nil {
			return "", fmt.Errorf("security: otp entropy: %w", err)
		}
		sb.WriteByte(byte('1' + n.Int64()))
	}
	return sb.String(), nil
}

// RandomDigits returns n random decimal digits, used to disambiguate
// colliding usernames.
func RandomDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("security: digit count must be positive")
	}
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("security: digit entropy: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}
