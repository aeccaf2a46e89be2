package security

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"

	"github.com/eternaltwin/etwin/internal/model"
)

// DefaultEmailWorkFactor はメールアドレス暗号化に使うscryptの既定の作業係数。
const DefaultEmailWorkFactor = 15

// EmailCipher はメールアドレスを保存用に暗号化する。
// 暗号文は検索できないため、検索には Hash を使う。
type EmailCipher struct {
	secret     string
	workFactor int
}

// NewEmailCipher は秘密値からEmailCipherを生成する。workFactor が0以下の場合は既定値を使う。
func NewEmailCipher(secret string, workFactor int) (*EmailCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("email cipher secret is empty")
	}
	if workFactor <= 0 {
		workFactor = DefaultEmailWorkFactor
	}
	return &EmailCipher{secret: secret, workFactor: workFactor}, nil
}

// Encrypt はメールアドレスをageのscrypt受信者で暗号化する。
func (c *EmailCipher) Encrypt(email model.EmailAddress) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(c.workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, string(email)); err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize email encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt は Encrypt の暗号文を復号する。
func (c *EmailCipher) Decrypt(ciphertext []byte) (model.EmailAddress, error) {
	identity, err := age.NewScryptIdentity(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to create scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt email: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read decrypted email: %w", err)
	}
	return model.EmailAddress(plain), nil
}

// Hash は小文字化したメールアドレスのSHA-256を返す。
func (c *EmailCipher) Hash(email model.EmailAddress) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(string(email))))
	return sum[:]
}
