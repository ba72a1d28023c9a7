package models

import "github.com/google/uuid"

// UserIdentity 代表使用者的身份
// 包含 SSO 提供者 ID、使用者 ID 以及識別字串，用來識別使用者在 SSO 提供者的身份
type UserIdentity struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SsoProviderID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_identity_provider_identity;not null;<-:create"`
	UserID        uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	Identity      string    `gorm:"type:text;uniqueIndex:idx_user_identity_provider_identity;not null;<-:create"`

	SsoProvider *SsoProvider `gorm:"foreignKey:SsoProviderID"`
	User        *User        `gorm:"foreignKey:UserID"`
}
