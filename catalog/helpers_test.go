package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"productcatalog/models"
)

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryDB 是測試用的記憶體資料庫，同時實作三個紀錄儲存介面
type memoryDB struct {
	mu         sync.Mutex
	products   map[uuid.UUID]models.Product
	images     map[uuid.UUID]models.ProductImage
	categories map[uuid.UUID]models.Category
	links      map[uuid.UUID][]uuid.UUID
	clock      time.Time

	failProductCreate bool
	failProductDelete bool
	failProductUpdate bool
	failFind          bool
	failSetCategories bool
	failImageDelete   bool
	failCount         bool
	// failImageCreateAt 為 n 時第 n 次建立圖片紀錄會失敗 (從 1 開始)
	failImageCreateAt int
	imageCreates      int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		products:   map[uuid.UUID]models.Product{},
		images:     map[uuid.UUID]models.ProductImage{},
		categories: map[uuid.UUID]models.Category{},
		links:      map[uuid.UUID][]uuid.UUID{},
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (db *memoryDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func (db *memoryDB) addCategory(name string) models.Category {
	db.mu.Lock()
	defer db.mu.Unlock()
	category := models.Category{ID: uuid.New(), Name: name}
	db.categories[category.ID] = category
	return category
}

func (db *memoryDB) productCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.products)
}

func (db *memoryDB) imagesOf(productID uuid.UUID) []models.ProductImage {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.imagesOfLocked(productID)
}

func (db *memoryDB) imagesOfLocked(productID uuid.UUID) []models.ProductImage {
	var result []models.ProductImage
	for _, image := range db.images {
		if image.ProductID == productID {
			result = append(result, image)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

type productStore struct{ *memoryDB }

func (s productStore) Create(_ context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProductCreate {
		return errInjected
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = s.tick()
	product.UpdatedAt = product.CreatedAt
	stored := *product
	stored.Images = nil
	stored.Categories = nil
	s.products[product.ID] = stored
	return nil
}

func (s productStore) FindByID(_ context.Context, id uuid.UUID, withRelations bool) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind {
		return nil, errInjected
	}
	product, ok := s.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if withRelations {
		product.Images = s.imagesOfLocked(id)
		for _, categoryID := range s.links[id] {
			product.Categories = append(product.Categories, s.categories[categoryID])
		}
	}
	return &product, nil
}

func (s productStore) Update(_ context.Context, id uuid.UUID, fields ProductFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProductUpdate {
		return errInjected
	}
	product, ok := s.products[id]
	if !ok {
		return models.ErrNotFound
	}
	product.Name = fields.Name
	product.Price = fields.Price
	product.Description = fields.Description
	product.OwnerID = fields.OwnerID
	product.UpdatedAt = s.tick()
	s.products[id] = product
	return nil
}

func (s productStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProductDelete {
		return errInjected
	}
	if _, ok := s.products[id]; !ok {
		return models.ErrNotFound
	}
	for imageID, image := range s.images {
		if image.ProductID == id {
			delete(s.images, imageID)
		}
	}
	delete(s.links, id)
	delete(s.products, id)
	return nil
}

func (s productStore) List(_ context.Context, filter ProductFilter) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Product
	for _, product := range s.products {
		if filter.OwnerID != nil && product.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.CategoryID != nil {
			found := false
			for _, id := range s.links[product.ID] {
				found = found || id == *filter.CategoryID
			}
			if !found {
				continue
			}
		}
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

type imageStore struct{ *memoryDB }

func (s imageStore) Create(_ context.Context, image *models.ProductImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageCreates++
	if s.failImageCreateAt == s.imageCreates {
		return errInjected
	}
	if _, ok := s.products[image.ProductID]; !ok {
		return fmt.Errorf("foreign key violation: product %s", image.ProductID)
	}
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	image.CreatedAt = s.tick()
	s.images[image.ID] = *image
	return nil
}

func (s imageStore) FindByID(_ context.Context, id uuid.UUID) (*models.ProductImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &image, nil
}

func (s imageStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failImageDelete {
		return errInjected
	}
	if _, ok := s.images[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.images, id)
	return nil
}

func (s imageStore) Count(_ context.Context, productID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount {
		return 0, errInjected
	}
	return int64(len(s.imagesOfLocked(productID))), nil
}

func (s imageStore) ExistsByRef(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, image := range s.images {
		if image.ExternalRef == ref {
			return true, nil
		}
	}
	return false, nil
}

type categoryStore struct{ *memoryDB }

func (s categoryStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Category
	for _, id := range ids {
		if category, ok := s.categories[id]; ok {
			result = append(result, category)
		}
	}
	return result, nil
}

func (s categoryStore) SetAssociations(_ context.Context, productID uuid.UUID, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetCategories {
		return errInjected
	}
	s.links[productID] = append([]uuid.UUID(nil), ids...)
	return nil
}

func (s categoryStore) List(_ context.Context) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Category
	for _, category := range s.categories {
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// objectStore 是測試用的外部儲存，記錄目前存在的物件
type objectStore struct {
	mu      sync.Mutex
	objects map[string]Upload
	seq     int
	stores  int
	deletes int

	// failStoreAt 為 n 時第 n 次上傳會失敗 (從 1 開始)
	failStoreAt int
	failDelete  map[string]bool
	failAll     bool
}

func newObjectStore() *objectStore {
	return &objectStore{objects: map[string]Upload{}, failDelete: map[string]bool{}}
}

func (s *objectStore) Store(_ context.Context, file Upload, hint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores++
	if s.failStoreAt == s.stores {
		return "", errInjected
	}
	s.seq++
	ref := fmt.Sprintf("https://cdn.test/%s/%d-%s", hint, s.seq, file.Filename)
	s.objects[ref] = file
	return ref, nil
}

func (s *objectStore) Delete(_ context.Context, ref string) (DeleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failAll || s.failDelete[ref] {
		return DeleteFailed, errInjected
	}
	if _, ok := s.objects[ref]; !ok {
		return DeleteSkipped, nil
	}
	delete(s.objects, ref)
	return DeleteDeleted, nil
}

func (s *objectStore) DeleteMany(ctx context.Context, refs []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(refs))
	for _, ref := range refs {
		outcome, err := s.Delete(ctx, ref)
		results = append(results, DeleteResult{Ref: ref, Outcome: outcome, Err: err})
	}
	return results
}

func (s *objectStore) live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]string, 0, len(s.objects))
	for ref := range s.objects {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func (s *objectStore) failDeleteOf(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete[ref] = true
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []OrphanReport
}

func (r *recordingReporter) Publish(report OrphanReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

type fixture struct {
	db       *memoryDB
	objects  *objectStore
	reporter *recordingReporter
	manager  *Manager
	owner    uuid.UUID
}

func setupManager(t *testing.T, opts ...ManagerOption) *fixture {
	t.Helper()
	db := newMemoryDB()
	objects := newObjectStore()
	reporter := &recordingReporter{}
	opts = append([]ManagerOption{
		WithManagerLogger(discardLogger()),
		WithOrphanReporter(reporter),
	}, opts...)
	manager, err := NewManager(productStore{db}, imageStore{db}, categoryStore{db}, objects, opts...)
	require.NoError(t, err)
	return &fixture{db: db, objects: objects, reporter: reporter, manager: manager, owner: uuid.New()}
}

func uploads(names ...string) []Upload {
	files := make([]Upload, 0, len(names))
	for _, name := range names {
		files = append(files, Upload{Filename: name, ContentType: "image/png", Content: []byte("png:" + name)})
	}
	return files
}

func (f *fixture) input(name string) ProductInput {
	return ProductInput{Name: name, Price: "10.00", Description: "desc", OwnerID: f.owner}
}

// assertConsistent 檢查所有圖片紀錄都指向存在的物件，並且沒有多餘的物件
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	f.db.mu.Lock()
	refs := make([]string, 0, len(f.db.images))
	for _, image := range f.db.images {
		_, ok := f.db.products[image.ProductID]
		require.True(t, ok, "image %s has no product", image.ID)
		refs = append(refs, image.ExternalRef)
	}
	counts := map[uuid.UUID]int{}
	for _, image := range f.db.images {
		counts[image.ProductID]++
	}
	f.db.mu.Unlock()
	for productID, n := range counts {
		require.LessOrEqual(t, n, models.MaxProductImages, "product %s", productID)
	}
	sort.Strings(refs)
	require.Equal(t, refs, f.objects.live())
}

func (f *fixture) create(t *testing.T, name string, files ...string) *models.Product {
	t.Helper()
	out, err := f.manager.Create(context.Background(), CreateInput{ProductInput: f.input(name), Files: uploads(files...)})
	require.NoError(t, err)
	require.NotNil(t, out.Product)
	return out.Product
}
