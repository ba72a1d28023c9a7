//go:generate mockgen -package=api -destination=mock.go -source=interfaces.go

package api

import (
	"context"

	"github.com/google/uuid"

	"productcatalog/catalog"
	"productcatalog/models"
)

// IProductManager 是 HTTP 層使用的商品流程
type IProductManager interface {
	Create(ctx context.Context, in catalog.CreateInput) (catalog.Outcome, error)
	Update(ctx context.Context, in catalog.UpdateInput) (catalog.Outcome, error)
	Delete(ctx context.Context, id uuid.UUID) (catalog.Outcome, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filter catalog.ProductFilter) ([]models.Product, error)
	Categories(ctx context.Context) ([]models.Category, error)
}

// IReconciler 清理孤兒物件
type IReconciler interface {
	Reconcile(ctx context.Context, ref string) (catalog.DeleteOutcome, error)
}

// IUserDirectory 把 OIDC 身分對應到使用者
type IUserDirectory interface {
	FindOrCreateByIdentity(ctx context.Context, provider, identity, username string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
