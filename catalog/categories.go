package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// CategoryResolver 負責商品與分類之間的多對多關聯
type CategoryResolver struct {
	store CategoryStore
}

func NewCategoryResolver(store CategoryStore) *CategoryResolver {
	return &CategoryResolver{store: store}
}

// Validate 去除重複的 id，並確認所有分類都存在
// 任何一個 id 不存在時回傳 ValidationError，不會寫入任何關聯
func (r *CategoryResolver) Validate(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	const op = "CategoryResolver.Validate"
	unique := lo.Uniq(ids)
	if len(unique) == 0 {
		return []uuid.UUID{}, nil
	}
	found, err := r.store.FindByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find categories, err=%w", op, err)
	}
	known := make(map[uuid.UUID]struct{}, len(found))
	for _, category := range found {
		known[category.ID] = struct{}{}
	}
	missing := lo.Filter(unique, func(id uuid.UUID, _ int) bool {
		_, ok := known[id]
		return !ok
	})
	if len(missing) > 0 {
		return nil, &ValidationError{
			Field:  "categories",
			Reason: "unknown category ids: " + strings.Join(lo.Map(missing, func(id uuid.UUID, _ int) string { return id.String() }), ", "),
		}
	}
	return unique, nil
}

// Replace 將商品的分類完整替換成 ids，空集合代表清除所有分類
func (r *CategoryResolver) Replace(ctx context.Context, productID uuid.UUID, ids []uuid.UUID) error {
	const op = "CategoryResolver.Replace"
	validated, err := r.Validate(ctx, ids)
	if err != nil {
		return err
	}
	if err := r.store.SetAssociations(ctx, productID, validated); err != nil {
		return fmt.Errorf("[%s] Fail to set categories, product=%s, err=%w", op, productID, err)
	}
	return nil
}
