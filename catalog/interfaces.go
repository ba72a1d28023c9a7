package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"productcatalog/models"
)

// ProductFields 是商品可以被更新的純量欄位
type ProductFields struct {
	Name        string
	Price       decimal.Decimal
	Description string
	OwnerID     uuid.UUID
}

// ProductFilter 是列出商品時的篩選條件，nil 代表不篩選
type ProductFilter struct {
	CategoryID *uuid.UUID
	OwnerID    *uuid.UUID
}

// ProductStore 定義商品紀錄的儲存介面
// 查無資料時回傳 models.ErrNotFound
type ProductStore interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID, withRelations bool) (*models.Product, error)
	Update(ctx context.Context, id uuid.UUID, fields ProductFields) error
	// Delete 刪除商品以及它的圖片紀錄和分類關聯
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
}

// ImageStore 定義商品圖片紀錄的儲存介面
type ImageStore interface {
	Create(ctx context.Context, image *models.ProductImage) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProductImage, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, productID uuid.UUID) (int64, error)
	ExistsByRef(ctx context.Context, ref string) (bool, error)
}

// CategoryStore 定義分類以及商品分類關聯的儲存介面
type CategoryStore interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Category, error)
	// SetAssociations 將商品的分類設定為 ids，空集合會清除所有關聯
	SetAssociations(ctx context.Context, productID uuid.UUID, ids []uuid.UUID) error
	List(ctx context.Context) ([]models.Category, error)
}

// OrphanReporter 接收清理失敗後遺留在外部儲存的物件
type OrphanReporter interface {
	Publish(report OrphanReport) error
}
