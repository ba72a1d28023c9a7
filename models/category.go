package models

import "github.com/google/uuid"

// Category 代表商品分類，和商品是多對多關聯
type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"type:varchar(255);not null;uniqueIndex"`
}
