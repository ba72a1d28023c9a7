package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductImage 代表商品的一張圖片
// ExternalRef 是物件儲存回傳的公開 URL，之後刪除物件時會從這個 URL 推導出 key
type ProductImage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	ExternalRef string    `gorm:"type:text;not null;uniqueIndex;<-:create"`
	Filename    string    `gorm:"type:varchar(255);not null;default:''"`
	ContentType string    `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt   time.Time
}
