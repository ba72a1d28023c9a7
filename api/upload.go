package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "productcatalog/adapters/s3"
	"productcatalog/catalog"
)

const (
	FormFieldImages         = "images"
	FormFieldName           = "name"
	FormFieldPrice          = "price"
	FormFieldDescription    = "description"
	FormFieldOwnerID        = "owner_id"
	FormFieldCategoryIDs    = "category_ids"
	FormFieldRemoveImageIDs = "remove_image_ids"

	// multipart 中非檔案欄位的額外空間
	formOverhead = 1 << 20
)

// productForm 是解析後的商品表單
type productForm struct {
	input          catalog.ProductInput
	removeImageIDs []uuid.UUID
	files          []catalog.Upload
}

// parseProductForm 解析 multipart 表單並檢查上傳的圖片
// 	1. 檔案數量不超過上限（在讀取任何檔案之前檢查）
// 	2. 每個檔案不超過大小限制
// 	3. 依照內容判斷的 MIME 類型必須是不包含腳本的圖片
func (impl *ServerImpl) parseProductForm(c *gin.Context, actingUser uuid.UUID) (*productForm, error) {
	const op = "parseProductForm"
	limits := impl.config.Upload
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limits.MaxFiles)*limits.MaxFileSize+formOverhead)
	if err := c.Request.ParseMultipartForm(formOverhead); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, &catalog.ValidationError{Field: FormFieldImages, Reason: fmt.Sprintf("request body exceeds %s", internalS3.FormatBytes(maxBytesErr.Limit))}
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, &catalog.ValidationError{Field: "body", Reason: "must be multipart/form-data"}
		}
		return nil, fmt.Errorf("[%s] Fail to parse multipart form, err=%w", op, err)
	}
	form := c.Request.MultipartForm

	result := &productForm{
		input: catalog.ProductInput{
			Name:        firstValue(form, FormFieldName),
			Price:       firstValue(form, FormFieldPrice),
			Description: firstValue(form, FormFieldDescription),
			OwnerID:     actingUser,
		},
	}
	if owner := firstValue(form, FormFieldOwnerID); owner != "" {
		ownerID, err := uuid.Parse(owner)
		if err != nil {
			return nil, &catalog.ValidationError{Field: "owner", Reason: fmt.Sprintf("%q is not a valid id", owner)}
		}
		result.input.OwnerID = ownerID
	}
	var err error
	if result.input.CategoryIDs, err = parseIDs(form.Value[FormFieldCategoryIDs], "categories"); err != nil {
		return nil, err
	}
	if result.removeImageIDs, err = parseIDs(form.Value[FormFieldRemoveImageIDs], "remove_image_ids"); err != nil {
		return nil, err
	}

	headers := form.File[FormFieldImages]
	if len(headers) > limits.MaxFiles {
		return nil, &catalog.ValidationError{
			Field:  FormFieldImages,
			Reason: fmt.Sprintf("at most %d images are allowed, got %d", limits.MaxFiles, len(headers)),
		}
	}
	result.files = make([]catalog.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header, limits.MaxFileSize)
		if err != nil {
			return nil, err
		}
		result.files = append(result.files, upload)
	}
	return result, nil
}

func readUpload(header *multipart.FileHeader, maxSize int64) (catalog.Upload, error) {
	const op = "readUpload"
	filename := filepath.Base(header.Filename)
	if header.Size > maxSize {
		return catalog.Upload{}, &catalog.ValidationError{
			Field:  FormFieldImages,
			Reason: fmt.Sprintf("%s exceeds size limit of %s", filename, internalS3.FormatBytes(maxSize)),
		}
	}
	file, err := header.Open()
	if err != nil {
		return catalog.Upload{}, fmt.Errorf("[%s] Fail to open %s, err=%w", op, filename, err)
	}
	defer file.Close()

	content, err := internalS3.ReadAllLimited(file, maxSize)
	var limitErr *internalS3.SizeLimitError
	if errors.As(err, &limitErr) {
		return catalog.Upload{}, &catalog.ValidationError{Field: FormFieldImages, Reason: fmt.Sprintf("%s %s", filename, err)}
	}
	if err != nil {
		return catalog.Upload{}, fmt.Errorf("[%s] Fail to read %s, err=%w", op, filename, err)
	}
	// 不信任客戶端提供的 Content-Type
	mimeType, ok := internalS3.DetectSecureImage(content)
	if !ok {
		return catalog.Upload{}, &catalog.ValidationError{
			Field:  FormFieldImages,
			Reason: fmt.Sprintf("invalid image type of %s: %s", filename, mimeType),
		}
	}
	return catalog.Upload{
		Filename:    filename,
		ContentType: mimeType,
		Content:     content,
	}, nil
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// parseIDs 解析重複欄位或逗號分隔的 id
func parseIDs(values []string, field string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, &catalog.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a valid id", raw)}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
