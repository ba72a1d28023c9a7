package models

import (
	"time"

	"github.com/google/uuid"
)

// User 代表商品目錄的使用者，也是商品的擁有者
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time

	Identities []UserIdentity `gorm:"foreignKey:UserID"`
}
