package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/domain"
	"github.com/vbonduro/mealverify/internal/photostore"
	"github.com/vbonduro/mealverify/internal/store"
)

// plateRepository is the subset of store.PlateStore that CatalogService requires.
type plateRepository interface {
	Create(ctx context.Context, p *domain.Plate) (*domain.Plate, error)
	GetByID(ctx context.Context, plateID string) (*domain.Plate, error)
	List(ctx context.Context) ([]*domain.Plate, error)
}

// productRepository is the subset of store.ProductStore that CatalogService requires.
type productRepository interface {
	Create(ctx context.Context, sku, name string) (*domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	List(ctx context.Context, f store.ProductFilter) (*domain.Page[*domain.Product], error)
	FindWithPictures(ctx context.Context, skus []string) (map[string]*domain.ProductWithPictures, error)
	UpdateName(ctx context.Context, sku, name string) error
	Delete(ctx context.Context, sku string) error
}

// pictureRepository is the subset of store.PictureStore that CatalogService requires.
type pictureRepository interface {
	Create(ctx context.Context, sku, storageKey, mimeType string, weight float64, plateID string) (*domain.ProductPicture, error)
	GetByID(ctx context.Context, id int64) (*domain.ProductPicture, error)
	List(ctx context.Context) ([]*domain.ProductPicture, error)
	ListBySKU(ctx context.Context, sku string) ([]*domain.ProductPicture, error)
	Delete(ctx context.Context, id int64) (*domain.ProductPicture, error)
	DeleteBySKU(ctx context.Context, sku string) ([]*domain.ProductPicture, error)
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type PlateInput struct {
	PlateID       string  `json:"plate_id" validate:"required,max=32"`
	UpperDiameter float64 `json:"upper_diameter" validate:"finite,gt=0"`
	LowerDiameter float64 `json:"lower_diameter" validate:"finite,gt=0"`
	Depth         float64 `json:"depth" validate:"finite,gte=0"`
}

type ProductInput struct {
	SKU  string `json:"sku" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

// ProductQuery selects one page of the catalog. Page is 1-based; zero
// values fall back to the first page of ten.
type ProductQuery struct {
	Page  int
	Limit int
	SKU   string
	Name  string
}

// Upload is an image received from a client.
type Upload struct {
	MimeType string `json:"mime_type" validate:"oneof=image/jpeg image/png image/gif image/webp"`
	Data     []byte `json:"image" validate:"required,min=1"`
}

type PictureInput struct {
	SKU     string  `json:"sku" validate:"required,max=64"`
	Weight  float64 `json:"weight" validate:"finite,gt=0"`
	PlateID string  `json:"plate_id" validate:"required"`
	Image   Upload  `json:"image"`
}

type CatalogService struct {
	plates   plateRepository
	products productRepository
	pictures pictureRepository
	photoStg photostore.PhotoStore
	logger   *slog.Logger
}

func NewCatalogService(
	plates plateRepository,
	products productRepository,
	pictures pictureRepository,
	photoStg photostore.PhotoStore,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		plates:   plates,
		products: products,
		pictures: pictures,
		photoStg: photoStg,
		logger:   logger,
	}
}

func (s *CatalogService) ListPlates(ctx context.Context) ([]*domain.Plate, error) {
	plates, err := s.plates.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list plates", "failed to list plates")
	}
	if plates == nil {
		plates = []*domain.Plate{}
	}
	return plates, nil
}

func (s *CatalogService) GetPlate(ctx context.Context, plateID string) (*domain.Plate, error) {
	const op = "get plate"
	plate, err := s.plates.GetByID(ctx, strings.ToUpper(strings.TrimSpace(plateID)))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get plate")
	}
	if plate == nil {
		return nil, apperr.NewNotFound(op, "plate %s not found", plateID)
	}
	return plate, nil
}

func (s *CatalogService) CreatePlate(ctx context.Context, in PlateInput) (*domain.Plate, error) {
	const op = "create plate"
	in.PlateID = strings.ToUpper(strings.TrimSpace(in.PlateID))
	if err := check(op, in); err != nil {
		return nil, err
	}

	plate, err := s.plates.Create(ctx, &domain.Plate{
		PlateID:       in.PlateID,
		UpperDiameter: in.UpperDiameter,
		LowerDiameter: in.LowerDiameter,
		Depth:         in.Depth,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.NewConflict(op, "plate %s already exists", in.PlateID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to create plate")
	}
	s.logger.Info("plate created", "plate_id", plate.PlateID)
	return plate, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	const op = "create product"
	in.SKU = normalizeSKU(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if err := check(op, in); err != nil {
		return nil, err
	}

	product, err := s.products.Create(ctx, in.SKU, in.Name)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.NewConflict(op, "product %s already exists", in.SKU)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to create product")
	}
	s.logger.Info("product created", "sku", product.SKU)
	return product, nil
}

// GetProduct returns a product with its reference pictures.
func (s *CatalogService) GetProduct(ctx context.Context, sku string) (*domain.ProductWithPictures, error) {
	const op = "get product"
	sku = normalizeSKU(sku)
	found, err := s.products.FindWithPictures(ctx, []string{sku})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get product")
	}
	product, ok := found[sku]
	if !ok {
		return nil, apperr.NewNotFound(op, "product %s not found", sku)
	}
	return product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*domain.Page[*domain.Product], error) {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit < 1:
		q.Limit = defaultPageSize
	case q.Limit > maxPageSize:
		q.Limit = maxPageSize
	}

	page, err := s.products.List(ctx, store.ProductFilter{
		SKU:   normalizeSKU(q.SKU),
		Name:  strings.TrimSpace(q.Name),
		Page:  q.Page,
		Limit: q.Limit,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list products", "failed to list products")
	}
	return page, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, sku, name string) (*domain.Product, error) {
	const op = "update product"
	in := ProductInput{SKU: normalizeSKU(sku), Name: strings.TrimSpace(name)}
	if err := check(op, in); err != nil {
		return nil, err
	}

	err := s.products.UpdateName(ctx, in.SKU, in.Name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NewNotFound(op, "product %s not found", in.SKU)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to update product")
	}

	product, err := s.products.GetBySKU(ctx, in.SKU)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get product")
	}
	return product, nil
}

// DeleteProduct removes a product, its picture rows and their stored images.
func (s *CatalogService) DeleteProduct(ctx context.Context, sku string) error {
	const op = "delete product"
	sku = normalizeSKU(sku)

	pictures, err := s.pictures.ListBySKU(ctx, sku)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, op, "failed to list product pictures")
	}

	err = s.products.Delete(ctx, sku)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NewNotFound(op, "product %s not found", sku)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, op, "failed to delete product")
	}

	s.removeImages(ctx, pictures)
	s.logger.Info("product deleted", "sku", sku, "pictures", len(pictures))
	return nil
}

// AddPicture stores a reference image and records it against a product and
// plate.
func (s *CatalogService) AddPicture(ctx context.Context, in PictureInput) (*domain.ProductPicture, error) {
	const op = "add product picture"
	in.SKU = normalizeSKU(in.SKU)
	in.PlateID = strings.ToUpper(strings.TrimSpace(in.PlateID))
	if err := check(op, in); err != nil {
		return nil, err
	}

	product, err := s.products.GetBySKU(ctx, in.SKU)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get product")
	}
	if product == nil {
		return nil, apperr.NewNotFound(op, "product %s not found", in.SKU)
	}
	plate, err := s.plates.GetByID(ctx, in.PlateID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get plate")
	}
	if plate == nil {
		return nil, apperr.NewNotFound(op, "plate %s not found", in.PlateID)
	}

	storageKey, err := s.photoStg.Save(ctx, "product_"+in.SKU, in.Image.MimeType, bytes.NewReader(in.Image.Data))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to save image")
	}
	s.logger.Debug("reference image saved", "sku", in.SKU, "storage_key", storageKey)

	picture, err := s.pictures.Create(ctx, in.SKU, storageKey, in.Image.MimeType, in.Weight, in.PlateID)
	if err != nil {
		if derr := s.photoStg.Delete(ctx, storageKey); derr != nil {
			s.logger.Error("failed to remove orphaned image", "storage_key", storageKey, "error", derr)
		}
		if errors.Is(err, store.ErrMissingReference) {
			return nil, apperr.Wrap(err, apperr.KindNotFound, op, "product or plate not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to create product picture")
	}

	s.logger.Info("product picture added", "sku", in.SKU, "picture_id", picture.ID, "plate_id", in.PlateID)
	return picture, nil
}

func (s *CatalogService) GetPicture(ctx context.Context, id int64) (*domain.ProductPicture, error) {
	const op = "get product picture"
	picture, err := s.pictures.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get product picture")
	}
	if picture == nil {
		return nil, apperr.NewNotFound(op, "product picture %d not found", id)
	}
	return picture, nil
}

// ListPictures returns every reference picture grouped by SKU.
func (s *CatalogService) ListPictures(ctx context.Context) (map[string][]*domain.ProductPicture, error) {
	pictures, err := s.pictures.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list product pictures", "failed to list product pictures")
	}

	grouped := make(map[string][]*domain.ProductPicture)
	for _, p := range pictures {
		grouped[p.SKU] = append(grouped[p.SKU], p)
	}
	return grouped, nil
}

func (s *CatalogService) ListProductPictures(ctx context.Context, sku string) ([]*domain.ProductPicture, error) {
	product, err := s.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}
	return product.Pictures, nil
}

// PictureImage opens the stored image of a reference picture. Callers must
// close the returned reader.
func (s *CatalogService) PictureImage(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	const op = "get product picture image"
	picture, err := s.GetPicture(ctx, id)
	if err != nil {
		return nil, "", err
	}

	rc, mimeType, err := s.photoStg.Get(ctx, picture.StorageKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, "", apperr.Wrap(err, apperr.KindNotFound, op, "image not found")
	}
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.KindInternal, op, "failed to open image")
	}
	if picture.MimeType != "" {
		mimeType = picture.MimeType
	}
	return rc, mimeType, nil
}

func (s *CatalogService) DeletePicture(ctx context.Context, id int64) error {
	const op = "delete product picture"
	picture, err := s.pictures.Delete(ctx, id)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, op, "failed to delete product picture")
	}
	if picture == nil {
		return apperr.NewNotFound(op, "product picture %d not found", id)
	}

	s.removeImages(ctx, []*domain.ProductPicture{picture})
	s.logger.Info("product picture deleted", "picture_id", id, "sku", picture.SKU)
	return nil
}

// DeleteProductPictures removes every reference picture of a product and
// returns how many were removed.
func (s *CatalogService) DeleteProductPictures(ctx context.Context, sku string) (int, error) {
	const op = "delete product pictures"
	sku = normalizeSKU(sku)

	product, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, op, "failed to get product")
	}
	if product == nil {
		return 0, apperr.NewNotFound(op, "product %s not found", sku)
	}

	removed, err := s.pictures.DeleteBySKU(ctx, sku)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, op, "failed to delete product pictures")
	}

	s.removeImages(ctx, removed)
	s.logger.Info("product pictures deleted", "sku", sku, "count", len(removed))
	return len(removed), nil
}

// removeImages deletes stored files after their rows are gone. Failures
// leave an orphaned file and are only logged.
func (s *CatalogService) removeImages(ctx context.Context, pictures []*domain.ProductPicture) {
	for _, p := range pictures {
		if err := s.photoStg.Delete(ctx, p.StorageKey); err != nil {
			s.logger.Warn("failed to delete stored image",
				"picture_id", p.ID, "storage_key", p.StorageKey, "error", err)
		}
	}
}
