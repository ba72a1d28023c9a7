package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"productcatalog/catalog"
	"productcatalog/models"
)

const productCategoriesTable = "product_categories"

// ProductStore 以 gorm 實作商品紀錄的儲存
type ProductStore struct {
	db *gorm.DB
}

var _ catalog.ProductStore = (*ProductStore)(nil)

func NewProductStore(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

// Create 只寫入商品本身，分類和圖片由各自的流程寫入
func (s *ProductStore) Create(ctx context.Context, product *models.Product) error {
	const op = "ProductStore.Create"
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error; err != nil {
		return fmt.Errorf("[%s] Fail to create product, err=%w", op, err)
	}
	return nil
}

func (s *ProductStore) FindByID(ctx context.Context, id uuid.UUID, withRelations bool) (*models.Product, error) {
	query := s.db.WithContext(ctx)
	if withRelations {
		query = preloadRelations(query).Preload("Owner")
	}
	var product models.Product
	if err := query.First(&product, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (s *ProductStore) Update(ctx context.Context, id uuid.UUID, fields catalog.ProductFields) error {
	const op = "ProductStore.Update"
	result := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(map[string]any{
		"name":        fields.Name,
		"price":       fields.Price,
		"description": fields.Description,
		"owner_id":    fields.OwnerID,
	})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update product, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete 在同一個交易中刪除商品、圖片紀錄以及分類關聯
func (s *ProductStore) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "ProductStore.Delete"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error; err != nil {
			return fmt.Errorf("[%s] Fail to delete image records, err=%w", op, err)
		}
		if err := tx.Model(&models.Product{ID: id}).Association("Categories").Clear(); err != nil {
			return fmt.Errorf("[%s] Fail to clear categories, err=%w", op, err)
		}
		result := tx.Delete(&models.Product{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete product, err=%w", op, result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// List 列出商品以及它們的分類和圖片，最新建立的在前面
func (s *ProductStore) List(ctx context.Context, filter catalog.ProductFilter) ([]models.Product, error) {
	const op = "ProductStore.List"
	query := preloadRelations(s.db.WithContext(ctx))
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.CategoryID != nil {
		joinTable := s.db.NamingStrategy.JoinTableName(productCategoriesTable)
		query = query.Where("id IN (?)", s.db.Table(joinTable).Select("product_id").Where("category_id = ?", *filter.CategoryID))
	}
	var products []models.Product
	if err := query.Order("created_at DESC").Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list products, err=%w", op, err)
	}
	return products, nil
}

func preloadRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("name")
		}).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at").Order("id")
		})
}
