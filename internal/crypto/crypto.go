package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"gorm.io/gorm"
)

const keySetting = "credential_key"

var ErrInvalidToken = errors.New("decrypt: invalid token")

// LoadKey returns the configured key, or the one kept in the settings table,
// generating and storing a new one on first use.
func LoadKey(configured string) (*fernet.Key, error) {
	if configured != "" {
		key, err := fernet.DecodeKey(configured)
		if err != nil {
			return nil, fmt.Errorf("decode configured key: %w", err)
		}
		return key, nil
	}

	keyStr, err := database.GetSetting(keySetting)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("read fernet key: %w", err)
		}
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		return &k, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return key, nil
}

func Encrypt(key *fernet.Key, plaintext []byte) (string, error) {
	tok, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(key *fernet.Key, ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, nil
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return nil, ErrInvalidToken
	}
	return msg, nil
}
