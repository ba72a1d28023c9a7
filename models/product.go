package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxProductImages 是單一商品可以擁有的圖片上限
const MaxProductImages = 5

// Product 代表商品目錄中的商品
// 包含商品名稱、價格、描述、擁有者，以及分類和圖片的關聯
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name        string          `gorm:"type:varchar(255);not null"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description string          `gorm:"type:text;not null;default:''"`
	OwnerID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// 外鍵關聯
	Owner      *User          `gorm:"foreignKey:OwnerID"`
	Categories []Category     `gorm:"many2many:product_categories;constraint:OnDelete:CASCADE"`
	Images     []ProductImage `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// ImageRefs 回傳商品所有圖片的外部參照，順序與上傳順序相同
func (p *Product) ImageRefs() []string {
	refs := make([]string, len(p.Images))
	for i, image := range p.Images {
		refs[i] = image.ExternalRef
	}
	return refs
}
