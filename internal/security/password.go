package security

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLower   = "abcdefghijkmnopqrstuvwxyz"
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits  = "23456789"
	passwordSpecial = "!@#$%^&*"
)

// GeneratePassword returns a random password of the given length containing at
// least one lowercase, one uppercase, one digit, and one special character.
// Ambiguous characters (l, I, 0, O, 1) are excluded. length below 8 is raised to 8.
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}
	all := passwordLower + passwordUpper + passwordDigits + passwordSpecial

	out := make([]byte, length)
	// Guarantee one character from each class, then fill the rest.
	classes := []string{passwordLower, passwordUpper, passwordDigits, passwordSpecial}
	for i, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	for i := len(classes); i < length; i++ {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
