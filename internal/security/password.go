package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/eternaltwin/etwin/internal/model"
)

// PasswordHasher はbcryptでパスワードをハッシュ化する。
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher は既定のコストのPasswordHasherを生成する。
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{Cost: bcrypt.DefaultCost}
}

// Hash はパスワードをハッシュ化する。
func (h *PasswordHasher) Hash(password model.Password) (model.PasswordHash, error) {
	hash, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return model.PasswordHash(hash), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
func (h *PasswordHasher) Verify(hash model.PasswordHash, password model.Password) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, password)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	return true, nil
}
