package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryResolver_Validate(t *testing.T) {
	db := newMemoryDB()
	home := db.addCategory("home")
	garden := db.addCategory("garden")
	unknown := uuid.New()
	resolver := NewCategoryResolver(categoryStore{db})

	tests := []struct {
		name    string
		ids     []uuid.UUID
		want    []uuid.UUID
		wantErr bool
	}{
		{
			name: "empty input",
			ids:  nil,
			want: []uuid.UUID{},
		},
		{
			name: "removes duplicates",
			ids:  []uuid.UUID{home.ID, garden.ID, home.ID},
			want: []uuid.UUID{home.ID, garden.ID},
		},
		{
			name:    "unknown id",
			ids:     []uuid.UUID{home.ID, unknown},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Validate(context.Background(), tt.ids)
			if tt.wantErr {
				var validation *ValidationError
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, "categories", validation.Field)
				assert.Contains(t, validation.Reason, unknown.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryResolver_Replace(t *testing.T) {
	db := newMemoryDB()
	home := db.addCategory("home")
	productID := uuid.New()
	resolver := NewCategoryResolver(categoryStore{db})

	require.NoError(t, resolver.Replace(context.Background(), productID, []uuid.UUID{home.ID}))
	assert.Equal(t, []uuid.UUID{home.ID}, db.links[productID])

	// 不存在的分類不會寫入，原本的關聯保留
	err := resolver.Replace(context.Background(), productID, []uuid.UUID{uuid.New()})
	assert.Error(t, err)
	assert.Equal(t, []uuid.UUID{home.ID}, db.links[productID])

	// 清除兩次結果相同
	for range 2 {
		require.NoError(t, resolver.Replace(context.Background(), productID, nil))
		assert.Empty(t, db.links[productID])
	}

	db.failSetCategories = true
	assert.ErrorIs(t, resolver.Replace(context.Background(), productID, []uuid.UUID{home.ID}), errInjected)
}
