package models

import "github.com/google/uuid"

// SsoProvider 代表支援的 SSO 提供者
type SsoProvider struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"type:varchar(64);not null;uniqueIndex;<-:create"`
}
