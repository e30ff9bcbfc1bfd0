package internal

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/pquerna/otp"
)

var ErrInvalidDigits = errors.New("invalid otp digits")

// NewCode returns a uniformly random numeric code of the given length,
// zero-padded. Only 6 and 8 digit codes are supported.
func NewCode(digits int) (string, error) {
	d := otp.Digits(digits)
	if d != otp.DigitsSix && d != otp.DigitsEight {
		return "", ErrInvalidDigits
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return d.Format(int32(n.Int64())), nil
}

// WellFormedCode reports whether code is exactly digits ASCII digits.
func WellFormedCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
