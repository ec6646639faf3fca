// Package auth hashes and verifies account passwords.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the fixed bcrypt work factor for stored credentials.
const PasswordCost = bcrypt.DefaultCost

var ErrPasswordMismatch = errors.New("password does not match")

// DummyHash is compared against when no account exists, so a login for an
// unknown username costs the same bcrypt work as a wrong password.
var DummyHash = mustHash("guestbook-unknown-account")

func mustHash(password string) string {
	hashed, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hashed
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword returns ErrPasswordMismatch when password does not match
// hash, and any other error for a malformed hash.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
