package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"productcatalog/catalog"
	"productcatalog/models"
)

// ImageStore 以 gorm 實作商品圖片紀錄的儲存
type ImageStore struct {
	db *gorm.DB
}

var _ catalog.ImageStore = (*ImageStore)(nil)

func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

func (s *ImageStore) Create(ctx context.Context, image *models.ProductImage) error {
	const op = "ImageStore.Create"
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("[%s] Fail to create image record, err=%w", op, err)
	}
	return nil
}

func (s *ImageStore) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductImage, error) {
	var image models.ProductImage
	if err := s.db.WithContext(ctx).First(&image, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &image, nil
}

func (s *ImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "ImageStore.Delete"
	result := s.db.WithContext(ctx).Delete(&models.ProductImage{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to delete image record, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *ImageStore) Count(ctx context.Context, productID uuid.UUID) (int64, error) {
	const op = "ImageStore.Count"
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProductImage{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("[%s] Fail to count images, err=%w", op, err)
	}
	return count, nil
}

// ExistsByRef 確認是否還有圖片紀錄引用這個外部參照
func (s *ImageStore) ExistsByRef(ctx context.Context, ref string) (bool, error) {
	const op = "ImageStore.ExistsByRef"
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProductImage{}).Where("external_ref = ?", ref).Count(&count).Error; err != nil {
		return false, fmt.Errorf("[%s] Fail to count references, err=%w", op, err)
	}
	return count > 0, nil
}
