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

// CategoryStore 以 gorm 實作分類以及商品分類關聯的儲存
type CategoryStore struct {
	db *gorm.DB
}

var _ catalog.CategoryStore = (*CategoryStore)(nil)

func NewCategoryStore(db *gorm.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Category, error) {
	const op = "CategoryStore.FindByIDs"
	if len(ids) == 0 {
		return []models.Category{}, nil
	}
	var categories []models.Category
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to find categories, err=%w", op, err)
	}
	return categories, nil
}

// SetAssociations 在同一個交易中替換商品的所有分類
// 分類本身必須已經存在，這裡不會建立新的分類
func (s *CategoryStore) SetAssociations(ctx context.Context, productID uuid.UUID, ids []uuid.UUID) error {
	const op = "CategoryStore.SetAssociations"
	categories := make([]models.Category, len(ids))
	for i, id := range ids {
		categories[i] = models.Category{ID: id}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		association := tx.Model(&models.Product{ID: productID}).Omit("Categories.*").Association("Categories")
		if len(categories) == 0 {
			return association.Clear()
		}
		return association.Replace(categories)
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to replace categories, product=%s, err=%w", op, productID, err)
	}
	return nil
}

func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	const op = "CategoryStore.List"
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list categories, err=%w", op, err)
	}
	return categories, nil
}

// Ensure 確保指定名稱的分類存在，已存在的分類不會被修改
func (s *CategoryStore) Ensure(ctx context.Context, names []string) ([]models.Category, error) {
	const op = "CategoryStore.Ensure"
	if len(names) == 0 {
		return []models.Category{}, nil
	}
	categories := make([]models.Category, len(names))
	for i, name := range names {
		categories[i] = models.Category{Name: name}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).Create(&categories).Error; err != nil {
			return err
		}
		return tx.Where("name IN ?", names).Order("name").Find(&categories).Error
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to ensure categories, err=%w", op, err)
	}
	return categories, nil
}
