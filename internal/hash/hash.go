// Package hash wraps bcrypt credential hashing.
package hash

import "golang.org/x/crypto/bcrypt"

const cost = bcrypt.DefaultCost

// HashPassword derives a salted bcrypt hash of the plaintext password.
// Two calls with the same input produce different hashes.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
// A malformed hash reads as a mismatch rather than an error.
func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
