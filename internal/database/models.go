package database

import "time"

type Setting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// AuthState holds the encrypted auth material of one device session.
type AuthState struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"uniqueIndex;not null"`
	Ciphertext string    `gorm:"not null"` // fernet token
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// DeliveryRecord is one outbound send attempt.
type DeliveryRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID  string    `gorm:"index" json:"message_id"`
	Recipient  string    `gorm:"not null;index" json:"recipient"`
	Kind       string    `gorm:"not null" json:"kind"`   // "text" or "media"
	Status     string    `gorm:"not null" json:"status"` // "sent", "failed", "rejected"
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
