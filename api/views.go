package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"productcatalog/models"
)

type ImageResponse struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CategoryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ProductResponse struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Price       string             `json:"price"`
	Description string             `json:"description"`
	OwnerID     uuid.UUID          `json:"ownerId"`
	Owner       string             `json:"owner,omitempty"`
	Categories  []CategoryResponse `json:"categories"`
	Images      []ImageResponse    `json:"images"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type ProductListResponse struct {
	Count int               `json:"count"`
	Items []ProductResponse `json:"items"`
}

type WriteResponse struct {
	Product  ProductResponse `json:"product"`
	Warnings []string        `json:"warnings,omitempty"`
}

type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	SsoProviders []string  `json:"ssoProviders"`
}

func newCategoryResponse(category models.Category, _ int) CategoryResponse {
	return CategoryResponse{ID: category.ID, Name: category.Name}
}

func newProductResponse(product *models.Product) ProductResponse {
	resp := ProductResponse{
		ID:          product.ID,
		Name:        product.Name,
		Price:       product.Price.StringFixed(2),
		Description: product.Description,
		OwnerID:     product.OwnerID,
		Categories:  lo.Map(product.Categories, newCategoryResponse),
		Images: lo.Map(product.Images, func(image models.ProductImage, _ int) ImageResponse {
			return ImageResponse{
				ID:          image.ID,
				URL:         image.ExternalRef,
				Filename:    image.Filename,
				ContentType: image.ContentType,
				CreatedAt:   image.CreatedAt,
			}
		}),
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	}
	if product.Owner != nil {
		resp.Owner = product.Owner.Username
	}
	return resp
}

func newUserResponse(user *models.User) UserResponse {
	providers := make([]string, 0, len(user.Identities))
	for _, identity := range user.Identities {
		if identity.SsoProvider != nil {
			providers = append(providers, identity.SsoProvider.Name)
		}
	}
	return UserResponse{
		ID:           user.ID,
		Username:     user.Username,
		SsoProviders: lo.Uniq(providers),
	}
}
