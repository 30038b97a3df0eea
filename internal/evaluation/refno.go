package evaluation

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	refNoAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	RefNoLength   = 10
)

var refNoPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,32}$`)

// NewRefNo draws a RefNoLength token uniformly from [A-Za-z0-9].
func NewRefNo() (string, error) {
	max := big.NewInt(int64(len(refNoAlphabet)))
	b := make([]byte, RefNoLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = refNoAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidRefNo accepts generated tokens and the shorter client-issued ones.
func ValidRefNo(s string) bool {
	return refNoPattern.MatchString(s)
}
