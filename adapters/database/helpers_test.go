package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"productcatalog/models"
)

// setupTest 建立一個獨立的 sqlite 記憶體資料庫
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Config{
		Driver:   DriverSQLite,
		Database: fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { Close(db) })
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{Username: name}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createProduct(t *testing.T, db *gorm.DB, owner models.User, name string) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:    name,
		Price:   decimal.RequireFromString("9.99"),
		OwnerID: owner.ID,
	}
	require.NoError(t, NewProductStore(db).Create(context.Background(), product))
	return product
}

func createImage(t *testing.T, db *gorm.DB, productID uuid.UUID, ref string) *models.ProductImage {
	t.Helper()
	image := &models.ProductImage{ProductID: productID, ExternalRef: ref, Filename: "a.png", ContentType: "image/png"}
	require.NoError(t, NewImageStore(db).Create(context.Background(), image))
	return image
}
