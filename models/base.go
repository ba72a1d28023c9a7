package models

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound 代表查詢的紀錄不存在，由儲存層將 gorm.ErrRecordNotFound 轉換而來
var ErrNotFound = errors.New("record not found")

// newID 在主鍵尚未設定時產生新的 UUID
// NOTE: 由應用程式端產生主鍵，讓 postgres 與 sqlite 都能使用相同的 model
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	newID(&i.ID)
	return nil
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	newID(&u.ID)
	return nil
}

func (p *SsoProvider) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (i *UserIdentity) BeforeCreate(tx *gorm.DB) error {
	newID(&i.ID)
	return nil
}
