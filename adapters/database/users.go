package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"productcatalog/models"
)

// UserStore 管理使用者以及他們在 SSO 提供者的身份
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// FindOrCreateByIdentity 以 SSO 身份取得使用者，身份不存在時建立新的使用者
func (s *UserStore) FindOrCreateByIdentity(ctx context.Context, provider, identity, username string) (*models.User, error) {
	const op = "UserStore.FindOrCreateByIdentity"
	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ssoProvider := models.SsoProvider{Name: provider}
		if err := tx.Where(&ssoProvider).FirstOrCreate(&ssoProvider).Error; err != nil {
			return fmt.Errorf("fail to find sso provider %s, err=%w", provider, err)
		}
		userIdentity := models.UserIdentity{
			SsoProviderID: ssoProvider.ID,
			Identity:      identity,
		}
		err := tx.Preload("User").Where(&userIdentity).First(&userIdentity).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("fail to get user identity, err=%w", err)
		}
		if err != nil {
			userIdentity.User = &models.User{Username: username}
			if err := tx.Create(&userIdentity).Error; err != nil {
				return fmt.Errorf("fail to create user identity, err=%w", err)
			}
		}
		user = userIdentity.User
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	return user, nil
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Identities.SsoProvider").First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
