package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"productcatalog/models"
)

type managerOptions struct {
	logger            *slog.Logger
	reporter          OrphanReporter
	metrics           *Metrics
	policy            *bluemonday.Policy
	destinationPrefix string
	maxImages         int
}

type ManagerOption func(*managerOptions)

// WithManagerLogger 設置日誌記錄器
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithOrphanReporter 設置孤兒物件的回報對象
func WithOrphanReporter(reporter OrphanReporter) ManagerOption {
	return func(o *managerOptions) {
		o.reporter = reporter
	}
}

// WithMetrics 設置 prometheus 指標
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(o *managerOptions) {
		o.metrics = metrics
	}
}

// WithDescriptionPolicy 設置商品描述的 HTML 過濾規則
func WithDescriptionPolicy(policy *bluemonday.Policy) ManagerOption {
	return func(o *managerOptions) {
		o.policy = policy
	}
}

// WithDestinationPrefix 設置上傳圖片在外部儲存的路徑前綴
func WithDestinationPrefix(prefix string) ManagerOption {
	return func(o *managerOptions) {
		o.destinationPrefix = prefix
	}
}

// Manager 負責商品與圖片的一致性
// 商品和圖片紀錄存在關聯式資料庫，圖片本身存在外部物件儲存，兩者之間沒有共同的交易，
// 所以每個流程都以固定的順序執行，並在失敗時透過補償動作還原
//
// NOTE: 流程之間沒有針對單一商品上鎖，兩個同時進行的更新可能同時通過圖片數量檢查
type Manager struct {
	products   ProductStore
	images     ImageStore
	categories CategoryStore
	resolver   *CategoryResolver
	objects    ObjectStore
	reporter   OrphanReporter
	metrics    *Metrics
	logger     *slog.Logger
	options    managerOptions
}

func NewManager(products ProductStore, images ImageStore, categories CategoryStore, objects ObjectStore, opts ...ManagerOption) (*Manager, error) {
	if products == nil || images == nil || categories == nil {
		return nil, errors.New("record stores cannot be nil")
	}
	if objects == nil {
		return nil, errors.New("object store cannot be nil")
	}

	// 默認選項
	options := managerOptions{
		logger:            slog.Default(),
		policy:            bluemonday.UGCPolicy(),
		destinationPrefix: "products",
		maxImages:         models.MaxProductImages,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Manager{
		products:   products,
		images:     images,
		categories: categories,
		resolver:   NewCategoryResolver(categories),
		objects:    objects,
		reporter:   options.reporter,
		metrics:    options.metrics,
		logger:     options.logger.With(slog.String("caller", "Manager")),
		options:    options,
	}, nil
}

// ProductInput 是商品表單的原始輸入
type ProductInput struct {
	Name        string
	Price       string
	Description string
	OwnerID     uuid.UUID
	CategoryIDs []uuid.UUID
}

type CreateInput struct {
	ProductInput
	Files []Upload
}

type UpdateInput struct {
	ProductID uuid.UUID
	ProductInput
	RemoveImageIDs []uuid.UUID
	Files          []Upload
}

// Create 建立商品以及它的圖片
// 任何一張圖片上傳或寫入紀錄失敗，都會刪除已上傳的物件和商品本身
func (m *Manager) Create(ctx context.Context, in CreateInput) (Outcome, error) {
	const op = "Manager.Create"
	logger := m.logger.With(slog.String("op", op))

	// 在任何寫入之前完成所有檢查
	if len(in.Files) == 0 {
		m.metrics.workflow("create", "rejected")
		return Outcome{}, &ValidationError{Field: "images", Reason: "product must have at least one image"}
	}
	if err := m.checkFileCount(len(in.Files)); err != nil {
		m.metrics.workflow("create", "rejected")
		return Outcome{}, err
	}
	fields, err := m.parseFields(in.ProductInput)
	if err != nil {
		m.metrics.workflow("create", "rejected")
		return Outcome{}, err
	}
	categoryIDs, err := m.resolver.Validate(ctx, in.CategoryIDs)
	if err != nil {
		m.metrics.workflow("create", "rejected")
		return Outcome{}, err
	}

	product := &models.Product{
		Name:        fields.Name,
		Price:       fields.Price,
		Description: fields.Description,
		OwnerID:     fields.OwnerID,
	}
	var created bool
	var stored, orphans []string

	tx := newSaga(logger)
	//  1. 先建立商品，讓圖片有可以關聯的 id
	tx.add("create product",
		func(ctx context.Context) error {
			if err := m.products.Create(ctx, product); err != nil {
				return fmt.Errorf("[%s] Fail to create product, err=%w", op, err)
			}
			created = true
			return nil
		},
		func(ctx context.Context) error {
			if !created {
				return nil
			}
			if err := m.products.Delete(ctx, product.ID); err != nil {
				return fmt.Errorf("[%s] Fail to delete product %s, err=%w", op, product.ID, err)
			}
			return nil
		},
	)
	//  2. 依序上傳圖片並寫入紀錄
	tx.add("store images",
		func(ctx context.Context) error {
			hint := m.destination(product.ID)
			for i, file := range in.Files {
				ref, err := m.storeObject(ctx, file, hint)
				if err != nil {
					return err
				}
				stored = append(stored, ref)
				image := &models.ProductImage{
					ProductID:   product.ID,
					ExternalRef: ref,
					Filename:    file.Filename,
					ContentType: file.ContentType,
				}
				if err := m.images.Create(ctx, image); err != nil {
					return fmt.Errorf("[%s] Fail to create image record #%d, err=%w", op, i+1, err)
				}
			}
			return nil
		},
		func(ctx context.Context) error {
			warnings, failed := m.releaseObjects(ctx, stored, "create rollback")
			orphans = failed
			return errors.Join(warnings...)
		},
	)
	if warnings, err := tx.run(ctx); err != nil {
		// 等所有補償結束、圖片紀錄隨商品刪除之後才回報，對帳時才不會被視為仍在使用
		m.reportOrphans(context.WithoutCancel(ctx), product.ID, orphans, "create rollback")
		logger.Error("Fail to create product, rolled back", slog.Int("stored", len(stored)), slog.Any("error", err))
		m.metrics.workflow("create", "rolled_back")
		return Outcome{Warnings: warnings}, err
	}

	//  3. 分類不是關鍵資料，失敗時保留商品和圖片
	if len(categoryIDs) > 0 {
		if err := m.resolver.Replace(ctx, product.ID, categoryIDs); err != nil {
			logger.Error("Fail to associate categories", slog.String("product", product.ID.String()), slog.Any("error", err))
			m.metrics.workflow("create", "partial")
			return Outcome{Product: m.refresh(ctx, product)}, &PartialFailureError{Step: "category association", Err: err}
		}
	}

	loaded, err := m.products.FindByID(ctx, product.ID, true)
	if err != nil {
		m.metrics.workflow("create", "partial")
		return Outcome{Product: product}, &PartialFailureError{Step: "reload", Err: err}
	}
	logger.Info("Product created", slog.String("product", product.ID.String()), slog.Int("images", len(loaded.Images)))
	m.metrics.workflow("create", "ok")
	return Outcome{Product: loaded}, nil
}

// Update 更新商品欄位、分類與圖片
// 欄位與分類會先寫入，之後才處理圖片；圖片步驟失敗時已寫入的變更不會還原
func (m *Manager) Update(ctx context.Context, in UpdateInput) (Outcome, error) {
	const op = "Manager.Update"
	logger := m.logger.With(slog.String("op", op), slog.String("product", in.ProductID.String()))

	//  1. 載入商品
	product, err := m.load(ctx, op, in.ProductID)
	if err != nil {
		m.metrics.workflow("update", "failed")
		return Outcome{}, err
	}

	//  2. 檢查輸入後更新欄位
	fields, err := m.parseFields(in.ProductInput)
	if err != nil {
		m.metrics.workflow("update", "rejected")
		return Outcome{Product: product}, err
	}
	if err := m.checkFileCount(len(in.Files)); err != nil {
		m.metrics.workflow("update", "rejected")
		return Outcome{Product: product}, err
	}
	categoryIDs, err := m.resolver.Validate(ctx, in.CategoryIDs)
	if err != nil {
		m.metrics.workflow("update", "rejected")
		return Outcome{Product: product}, err
	}
	if err := m.products.Update(ctx, product.ID, fields); err != nil {
		m.metrics.workflow("update", "failed")
		return Outcome{Product: product}, fmt.Errorf("[%s] Fail to update product, err=%w", op, err)
	}

	var failedSteps []string
	var failures []error

	//  3. 完整替換分類，空集合代表清除
	if err := m.resolver.Replace(ctx, product.ID, categoryIDs); err != nil {
		logger.Error("Fail to replace categories", slog.Any("error", err))
		failedSteps = append(failedSteps, "category association")
		failures = append(failures, err)
	}

	//  4. 先處理刪除，釋放的空間才能給新圖片使用
	warnings := m.removeImages(ctx, logger, product.ID, in.RemoveImageIDs)
	if len(warnings) > 0 {
		failedSteps = append(failedSteps, "image removal")
		failures = append(failures, warnings...)
	}

	//  5. 上傳之前檢查數量，超過上限時不會呼叫外部儲存
	count, err := m.images.Count(ctx, product.ID)
	if err != nil {
		m.metrics.workflow("update", "failed")
		return Outcome{Product: m.refresh(ctx, product), Warnings: warnings}, fmt.Errorf("[%s] Fail to count images, err=%w", op, err)
	}
	if int(count)+len(in.Files) > m.options.maxImages {
		logger.Warn("Reject images over capacity", slog.Int64("current", count), slog.Int("adding", len(in.Files)))
		m.metrics.workflow("update", "rejected")
		return Outcome{Product: m.refresh(ctx, product), Warnings: warnings}, &CapacityExceededError{
			Current: int(count),
			Adding:  len(in.Files),
			Limit:   m.options.maxImages,
		}
	}

	//  6. 逐一加入新圖片，失敗時放棄剩下的檔案，已加入的保留
	hint := m.destination(product.ID)
	for i, file := range in.Files {
		if err := m.addImage(ctx, product.ID, hint, file); err != nil {
			logger.Error("Fail to add image, abandon remaining files",
				slog.Int("added", i),
				slog.Int("abandoned", len(in.Files)-i),
				slog.Any("error", err),
			)
			var storeErr *StoreError
			if errors.As(err, &storeErr) {
				storeErr.Committed = true
			}
			m.metrics.workflow("update", "failed")
			return Outcome{Product: m.refresh(ctx, product), Warnings: warnings}, err
		}
	}

	refreshed := m.refresh(ctx, product)
	if len(failures) > 0 {
		m.metrics.workflow("update", "partial")
		return Outcome{Product: refreshed, Warnings: warnings}, &PartialFailureError{
			Step: strings.Join(failedSteps, ", "),
			Err:  errors.Join(failures...),
		}
	}
	logger.Info("Product updated", slog.Int("images", len(refreshed.Images)))
	m.metrics.workflow("update", "ok")
	return Outcome{Product: refreshed}, nil
}

// Delete 刪除商品以及它所有的圖片
// 每張圖片先刪除外部物件再刪除紀錄，單張失敗不會中斷其他圖片；
// 全部嘗試過後刪除商品 (連帶刪除剩下的圖片紀錄)，再回傳第一個錯誤
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) (Outcome, error) {
	const op = "Manager.Delete"
	logger := m.logger.With(slog.String("op", op), slog.String("product", id.String()))

	product, err := m.load(ctx, op, id)
	if err != nil {
		m.metrics.workflow("delete", "failed")
		return Outcome{}, err
	}

	var firstErr error
	var warnings []error
	var surviving []string
	for i := range product.Images {
		image := &product.Images[i]
		if err := m.releaseImage(ctx, image); err != nil {
			logger.Error("Fail to release image", slog.String("image", image.ID.String()), slog.Any("error", err))
			warnings = append(warnings, err)
			if firstErr == nil {
				firstErr = err
			}
			var storeErr *StoreError
			if errors.As(err, &storeErr) {
				surviving = append(surviving, image.ExternalRef)
			}
		}
	}

	if err := m.products.Delete(ctx, product.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		// 商品還在，剩下的圖片紀錄仍然指向存在的物件
		m.metrics.workflow("delete", "failed")
		return Outcome{Product: m.refresh(ctx, product), Warnings: warnings}, fmt.Errorf("[%s] Fail to delete product, err=%w", op, err)
	}
	// 紀錄已經隨商品刪除，沒刪掉的外部物件交給對帳處理
	m.reportOrphans(context.WithoutCancel(ctx), product.ID, surviving, "product deleted")

	if firstErr != nil {
		m.metrics.workflow("delete", "partial")
		return Outcome{Warnings: warnings}, firstErr
	}
	logger.Info("Product deleted", slog.Int("images", len(product.Images)))
	m.metrics.workflow("delete", "ok")
	return Outcome{}, nil
}

// Get 取得商品以及它的擁有者、分類和圖片
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return m.load(ctx, "Manager.Get", id)
}

// List 列出商品，最新的在前面
func (m *Manager) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	const op = "Manager.List"
	products, err := m.products.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list products, err=%w", op, err)
	}
	return products, nil
}

// Categories 列出所有分類
func (m *Manager) Categories(ctx context.Context) ([]models.Category, error) {
	const op = "Manager.Categories"
	categories, err := m.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list categories, err=%w", op, err)
	}
	return categories, nil
}

func (m *Manager) load(ctx context.Context, op string, id uuid.UUID) (*models.Product, error) {
	product, err := m.products.FindByID(ctx, id, true)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &NotFoundError{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find product %s, err=%w", op, id, err)
	}
	return product, nil
}

// refresh 重新載入商品，失敗時回傳原本的狀態
func (m *Manager) refresh(ctx context.Context, fallback *models.Product) *models.Product {
	product, err := m.products.FindByID(context.WithoutCancel(ctx), fallback.ID, true)
	if err != nil {
		m.logger.Warn("Fail to reload product", slog.String("product", fallback.ID.String()), slog.Any("error", err))
		return fallback
	}
	return product
}

func (m *Manager) parseFields(in ProductInput) (ProductFields, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ProductFields{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(in.Price), ",", "."))
	if err != nil {
		return ProductFields{}, &ValidationError{Field: "price", Reason: fmt.Sprintf("%q is not a number", in.Price)}
	}
	if price.IsNegative() {
		return ProductFields{}, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if in.OwnerID == uuid.Nil {
		return ProductFields{}, &ValidationError{Field: "owner", Reason: "is required"}
	}
	return ProductFields{
		Name:        name,
		Price:       price.Round(2),
		Description: m.options.policy.Sanitize(strings.TrimSpace(in.Description)),
		OwnerID:     in.OwnerID,
	}, nil
}

func (m *Manager) checkFileCount(n int) error {
	if n > m.options.maxImages {
		return &ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("at most %d images are allowed, got %d", m.options.maxImages, n),
		}
	}
	return nil
}

func (m *Manager) destination(productID uuid.UUID) string {
	return path.Join(m.options.destinationPrefix, productID.String())
}

func (m *Manager) storeObject(ctx context.Context, file Upload, hint string) (string, error) {
	ref, err := m.objects.Store(ctx, file, hint)
	if err != nil {
		return "", &StoreError{Op: "store", Err: err}
	}
	if ref == "" {
		return "", &StoreError{Op: "store", Err: errors.New("empty reference returned")}
	}
	return ref, nil
}

// addImage 上傳單一檔案並寫入紀錄，紀錄寫入失敗時刪除剛上傳的物件
func (m *Manager) addImage(ctx context.Context, productID uuid.UUID, hint string, file Upload) error {
	const op = "Manager.addImage"
	ref, err := m.storeObject(ctx, file, hint)
	if err != nil {
		return err
	}
	image := &models.ProductImage{
		ProductID:   productID,
		ExternalRef: ref,
		Filename:    file.Filename,
		ContentType: file.ContentType,
	}
	if err := m.images.Create(ctx, image); err != nil {
		// 紀錄沒有寫入，物件不會被任何紀錄引用，可以立即回報
		ctx := context.WithoutCancel(ctx)
		_, failed := m.releaseObjects(ctx, []string{ref}, "image record failed")
		m.reportOrphans(ctx, productID, failed, "image record failed")
		return fmt.Errorf("[%s] Fail to create image record, err=%w", op, err)
	}
	return nil
}

// removeImages 刪除使用者指定的圖片，每張各自處理
// 不存在或屬於其他商品的 id 直接略過
func (m *Manager) removeImages(ctx context.Context, logger *slog.Logger, productID uuid.UUID, ids []uuid.UUID) []error {
	const op = "Manager.removeImages"
	var warnings []error
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		image, err := m.images.FindByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) || (err == nil && image.ProductID != productID) {
			logger.Debug("Skip removing unknown image", slog.String("image", id.String()))
			continue
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("[%s] Fail to find image %s, err=%w", op, id, err))
			continue
		}
		if err := m.releaseImage(ctx, image); err != nil {
			logger.Error("Fail to remove image", slog.String("image", id.String()), slog.Any("error", err))
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// releaseImage 先刪除外部物件再刪除紀錄
// 外部刪除失敗時保留紀錄，紀錄仍然指向一個存在的物件
func (m *Manager) releaseImage(ctx context.Context, image *models.ProductImage) error {
	const op = "Manager.releaseImage"
	outcome, err := m.objects.Delete(ctx, image.ExternalRef)
	if err == nil && outcome == DeleteFailed {
		err = errors.New("object store reported a failed delete")
	}
	m.metrics.objectDelete(outcome)
	if err != nil {
		return &StoreError{Op: "delete", Ref: image.ExternalRef, Err: err}
	}
	if outcome == DeleteSkipped {
		m.logger.Info("External object already gone", slog.String("ref", image.ExternalRef))
	}
	if err := m.images.Delete(ctx, image.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("[%s] Fail to delete image record %s, err=%w", op, image.ID, err)
	}
	return nil
}

// releaseObjects 刪除沒有紀錄引用的物件，回傳警告以及刪除失敗的參照
// 失敗的參照由呼叫端在確定沒有紀錄引用之後回報為孤兒
func (m *Manager) releaseObjects(ctx context.Context, refs []string, reason string) ([]error, []string) {
	if len(refs) == 0 {
		return nil, nil
	}
	var warnings []error
	var failed []string
	for _, result := range m.objects.DeleteMany(ctx, refs) {
		m.metrics.objectDelete(result.Outcome)
		switch {
		case result.Err != nil || result.Outcome == DeleteFailed:
			err := result.Err
			if err == nil {
				err = errors.New("object store reported a failed delete")
			}
			warnings = append(warnings, &StoreError{Op: "delete", Ref: result.Ref, Err: err})
			failed = append(failed, result.Ref)
		case result.Outcome == DeleteSkipped:
			m.logger.Info("Skip releasing missing object", slog.String("ref", result.Ref), slog.String("reason", reason))
		default:
			m.logger.Debug("Object released", slog.String("ref", result.Ref), slog.String("reason", reason))
		}
	}
	return warnings, failed
}
