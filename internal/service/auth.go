package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid login or password")

// OperatorAuth guards the diagnostics surface. There is a single
// operator credential configured at startup; portal-user accounts are
// out of scope here. The password is bcrypt-hashed immediately so the
// plaintext never lingers.
type OperatorAuth struct {
	login        string
	passwordHash []byte
}

func NewOperatorAuth(login, password string) (*OperatorAuth, error) {
	if login == "" || password == "" {
		return nil, errors.New("operator login and password must be set")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &OperatorAuth{login: login, passwordHash: hash}, nil
}

func (a *OperatorAuth) Verify(login, password string) error {
	if login != a.login {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}
