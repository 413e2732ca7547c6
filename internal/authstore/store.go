// Package authstore persists device auth material in the database, encrypted
// with fernet.
package authstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
	"github.com/gluk-w/claworc/session-gateway/internal/crypto"
	"github.com/gluk-w/claworc/session-gateway/internal/database"
	"github.com/gluk-w/claworc/session-gateway/internal/session"
	"gorm.io/gorm"
)

// DefaultName is the row used for the single device session.
const DefaultName = "default"

// Store implements session.CredentialStore.
type Store struct {
	db   *gorm.DB
	key  *fernet.Key
	name string
}

var _ session.CredentialStore = (*Store)(nil)

func New(db *gorm.DB, key *fernet.Key) *Store {
	return &Store{db: db, key: key, name: DefaultName}
}

func (s *Store) Load(ctx context.Context) (session.AuthMaterial, error) {
	var st database.AuthState
	err := s.db.WithContext(ctx).Where("name = ?", s.name).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load auth state: %w", err)
	}

	plain, err := crypto.Decrypt(s.key, st.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt auth state: %w", err)
	}
	return session.AuthMaterial(plain), nil
}

func (s *Store) Save(ctx context.Context, m session.AuthMaterial) error {
	tok, err := crypto.Encrypt(s.key, m)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Where("name = ?", s.name).
		Assign(database.AuthState{Ciphertext: tok}).
		FirstOrCreate(&database.AuthState{Name: s.name}).Error
	if err != nil {
		return fmt.Errorf("save auth state: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("name = ?", s.name).Delete(&database.AuthState{}).Error; err != nil {
		return fmt.Errorf("clear auth state: %w", err)
	}
	return nil
}
