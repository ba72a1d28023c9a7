package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"productcatalog/catalog"
	"productcatalog/models"
)

// List products
// (GET /products)
func (impl *ServerImpl) GetProducts(c *gin.Context) {
	const op = "GetProducts"
	var filter catalog.ProductFilter
	//  - category
	if raw := c.Query("category"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "Invalid category id")
			return
		}
		filter.CategoryID = &id
	}
	//  - owner
	if raw := c.Query("owner"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "Invalid owner id")
			return
		}
		filter.OwnerID = &id
	}
	products, err := impl.manager.List(c.Request.Context(), filter)
	if err != nil {
		impl.respondError(c, op, catalog.Outcome{}, err)
		return
	}
	c.JSON(http.StatusOK, ProductListResponse{
		Count: len(products),
		Items: lo.Map(products, func(product models.Product, _ int) ProductResponse {
			return newProductResponse(&product)
		}),
	})
}

// Get product details
// (GET /products/:id)
func (impl *ServerImpl) GetProductsID(c *gin.Context) {
	const op = "GetProductsID"
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	product, err := impl.manager.Get(c.Request.Context(), id)
	if err != nil {
		impl.respondError(c, op, catalog.Outcome{}, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

// List categories
// (GET /categories)
func (impl *ServerImpl) GetCategories(c *gin.Context) {
	const op = "GetCategories"
	categories, err := impl.manager.Categories(c.Request.Context())
	if err != nil {
		impl.respondError(c, op, catalog.Outcome{}, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(categories, newCategoryResponse))
}

// Add a new product
// (POST /products)
func (impl *ServerImpl) PostProducts(c *gin.Context) {
	const op = "PostProducts"
	userID, _ := currentUserID(c)
	form, err := impl.parseProductForm(c, userID)
	if err != nil {
		impl.respondError(c, op, catalog.Outcome{}, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), impl.requestTimeout())
	defer cancel()
	outcome, err := impl.manager.Create(ctx, catalog.CreateInput{
		ProductInput: form.input,
		Files:        form.files,
	})
	if err != nil {
		impl.respondError(c, op, outcome, err)
		return
	}
	impl.logger.Info("Product created", slog.String("product", outcome.Product.ID.String()), slog.Int("images", len(outcome.Product.Images)))
	c.Header("Location", "/products/"+outcome.Product.ID.String())
	c.JSON(http.StatusCreated, newWriteResponse(outcome))
}

// Update a product
// (POST /products/:id)
func (impl *ServerImpl) PostProductsID(c *gin.Context) {
	const op = "PostProductsID"
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	userID, _ := currentUserID(c)
	form, err := impl.parseProductForm(c, userID)
	if err != nil {
		impl.respondError(c, op, catalog.Outcome{}, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), impl.requestTimeout())
	defer cancel()
	outcome, err := impl.manager.Update(ctx, catalog.UpdateInput{
		ProductID:      id,
		ProductInput:   form.input,
		RemoveImageIDs: form.removeImageIDs,
		Files:          form.files,
	})
	if err != nil {
		impl.respondError(c, op, outcome, err)
		return
	}
	c.JSON(http.StatusOK, newWriteResponse(outcome))
}

// Delete a product and its images
// (DELETE /products/:id)
func (impl *ServerImpl) DeleteProductsID(c *gin.Context) {
	const op = "DeleteProductsID"
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), impl.requestTimeout())
	defer cancel()
	outcome, err := impl.manager.Delete(ctx, id)
	if err != nil {
		impl.respondError(c, op, outcome, err)
		return
	}
	impl.logger.Info("Product deleted", slog.String("product", id.String()))
	c.Status(http.StatusNoContent)
}

func productIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithMessage(c, http.StatusNotFound, "Product not found")
		return uuid.Nil, false
	}
	return id, true
}

func newWriteResponse(outcome catalog.Outcome) WriteResponse {
	resp := WriteResponse{Product: newProductResponse(outcome.Product)}
	if len(outcome.Warnings) > 0 {
		resp.Warnings = warningMessages(outcome.Warnings)
	}
	return resp
}
