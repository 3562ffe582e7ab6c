package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes an API key or password using bcrypt. This is what
// `novactl hash-key` prints for the tenants file.
func HashSecret(secret string, cost ...int) (string, error) {
	bcryptCost := bcrypt.DefaultCost
	if len(cost) > 0 {
		bcryptCost = cost[0]
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	return string(bytes), err
}

// CheckSecret compares a secret with its hash
func CheckSecret(secret, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}
