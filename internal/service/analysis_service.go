package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vbonduro/mealverify/internal/analysis"
	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/domain"
	"github.com/vbonduro/mealverify/internal/photostore"
	"github.com/vbonduro/mealverify/internal/store"
	"github.com/vbonduro/mealverify/internal/vision"
	"golang.org/x/sync/errgroup"
)

// mealRepository is the subset of store.MealRequestStore that AnalysisService requires.
type mealRepository interface {
	Create(ctx context.Context, req *domain.MealRequest) (int64, error)
	Complete(ctx context.Context, id int64, accurate bool, reportJSON, predictionJSON, rawResponse string) error
	Fail(ctx context.Context, id int64, reason, rawResponse string) error
	GetByID(ctx context.Context, id int64) (*domain.MealRequest, error)
	List(ctx context.Context, personID string) ([]*domain.MealRequest, error)
}

// productCatalog is the subset of store.ProductStore that AnalysisService requires.
type productCatalog interface {
	FindWithPictures(ctx context.Context, skus []string) (map[string]*domain.ProductWithPictures, error)
}

// imageLoadLimit bounds concurrent reads from the photo store per submission.
const imageLoadLimit = 4

type AnalysisOptions struct {
	MaxTokens     int
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

func (o AnalysisOptions) withDefaults() AnalysisOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1000
	}
	if o.Timeout <= 0 {
		o.Timeout = 90 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	return o
}

type MealProductInput struct {
	SKU    string  `json:"sku" validate:"required,max=64"`
	Weight float64 `json:"weight" validate:"finite,gte=0"`
}

// MealInput is a meal submission as received from a client.
type MealInput struct {
	PersonID    string             `json:"person_id" validate:"required,max=128"`
	Description string             `json:"description" validate:"max=2000"`
	WeightAfter float64            `json:"weight_after" validate:"finite,gte=0"`
	Products    []MealProductInput `json:"products" validate:"required,min=1,dive"`
	Before      Upload             `json:"picture_before"`
	After       Upload             `json:"picture_after"`
}

// Verification is the outcome of a successfully verified submission.
type Verification struct {
	RequestID int64 `json:"request_id"`
	*analysis.VerificationReport
	Prediction *analysis.PredictionResult `json:"prediction"`
}

// MealRequestView is a stored request with its decoded result, if any.
type MealRequestView struct {
	*domain.MealRequest
	Report     *analysis.VerificationReport `json:"report,omitempty"`
	Prediction *analysis.PredictionResult   `json:"prediction,omitempty"`
}

type AnalysisService struct {
	meals     mealRepository
	products  productCatalog
	visionAPI vision.VisionAnalyzer
	photoStg  photostore.PhotoStore
	opts      AnalysisOptions
	logger    *slog.Logger
}

func NewAnalysisService(
	meals mealRepository,
	products productCatalog,
	visionAPI vision.VisionAnalyzer,
	photoStg photostore.PhotoStore,
	opts AnalysisOptions,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		meals:     meals,
		products:  products,
		visionAPI: visionAPI,
		photoStg:  photoStg,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Submit normalizes a meal submission, records it, asks the vision model to
// estimate the weights and verifies the estimate against the declared
// weights. The stored request ends up completed or failed.
func (s *AnalysisService) Submit(ctx context.Context, in MealInput) (*Verification, error) {
	const op = "submit meal"

	in.PersonID = strings.TrimSpace(in.PersonID)
	in.Description = strings.TrimSpace(in.Description)
	for i := range in.Products {
		in.Products[i].SKU = normalizeSKU(in.Products[i].SKU)
	}
	if err := check(op, in); err != nil {
		return nil, err
	}
	if dup := duplicateSKU(in.Products); dup != "" {
		return nil, apperr.NewValidation(op, "duplicate sku %s", dup)
	}

	skus := make([]string, len(in.Products))
	for i, p := range in.Products {
		skus[i] = p.SKU
	}
	found, err := s.products.FindWithPictures(ctx, skus)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to load products")
	}
	if missing := missingSKUs(skus, found); len(missing) > 0 {
		return nil, apperr.NewNotFound(op, "products not found: %s", strings.Join(missing, ", "))
	}

	beforeKey, afterKey, err := s.saveMealImages(ctx, in)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to save meal images")
	}

	sub := buildSubmission(in, found, beforeKey, afterKey)
	record := &domain.MealRequest{
		PersonID:      sub.PersonID,
		Description:   sub.Description,
		WeightBefore:  sub.WeightBefore,
		WeightAfter:   sub.WeightAfter,
		PictureBefore: beforeKey,
		PictureAfter:  afterKey,
	}
	for _, p := range sub.Products {
		record.Products = append(record.Products, &domain.MealProductLine{SKU: p.SKU, Name: p.Name, WeightInReq: p.WeightInReq})
	}

	id, err := s.meals.Create(ctx, record)
	if err != nil {
		s.deleteImages(ctx, beforeKey, afterKey)
		if errors.Is(err, store.ErrMissingReference) {
			return nil, apperr.Wrap(err, apperr.KindNotFound, op, "product not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to save meal request")
	}
	logger := s.logger.With("meal_request_id", id, "person_id", sub.PersonID)
	logger.Info("meal request saved", "products", len(sub.Products), "weight_before", sub.WeightBefore)

	payload := analysis.Assemble(sub)
	images, err := s.loadImages(ctx, payload.OrderedImages)
	if err != nil {
		return nil, s.failWith(ctx, logger, id, "", apperr.Wrap(err, apperr.KindInternal, op, "failed to load images"))
	}

	logger.Info("vision analysis started", "images", len(images))
	result, err := s.callVision(ctx, logger, vision.NewRequest(payload, images, s.opts.MaxTokens))
	raw := ""
	if result != nil {
		raw = result.RawResponse
	}
	if err != nil {
		return nil, s.failWith(ctx, logger, id, raw, classifyVisionError(op, err))
	}

	report, err := analysis.Verify(result.Prediction, sub)
	if err != nil {
		return nil, s.failWith(ctx, logger, id, raw, classifyVisionError(op, err))
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, s.failWith(ctx, logger, id, raw, apperr.Wrap(err, apperr.KindInternal, op, "failed to encode report"))
	}
	predictionJSON, err := json.Marshal(result.Prediction)
	if err != nil {
		return nil, s.failWith(ctx, logger, id, raw, apperr.Wrap(err, apperr.KindInternal, op, "failed to encode prediction"))
	}
	if err := s.meals.Complete(context.WithoutCancel(ctx), id, report.Accurate, string(reportJSON), string(predictionJSON), raw); err != nil {
		return nil, s.failWith(ctx, logger, id, raw, apperr.Wrap(err, apperr.KindInternal, op, "failed to save verification"))
	}

	logger.Info("meal verified",
		"accurate", report.Accurate,
		"compared_products", len(report.ProductComparisons),
		"total_difference", report.TotalWeight.DifferencePercentage.String(),
	)
	return &Verification{RequestID: id, VerificationReport: report, Prediction: result.Prediction}, nil
}

func (s *AnalysisService) Get(ctx context.Context, id int64) (*MealRequestView, error) {
	const op = "get meal request"
	req, err := s.meals.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, op, "failed to get meal request")
	}
	if req == nil {
		return nil, apperr.NewNotFound(op, "meal request %d not found", id)
	}
	return s.view(req), nil
}

// List returns a person's meal requests, newest first.
func (s *AnalysisService) List(ctx context.Context, personID string) ([]*MealRequestView, error) {
	reqs, err := s.meals.List(ctx, strings.TrimSpace(personID))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list meal requests", "failed to list meal requests")
	}
	views := make([]*MealRequestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, s.view(req))
	}
	return views, nil
}

func (s *AnalysisService) view(req *domain.MealRequest) *MealRequestView {
	v := &MealRequestView{MealRequest: req}
	if req.ReportJSON != "" {
		v.Report = &analysis.VerificationReport{}
		if err := json.Unmarshal([]byte(req.ReportJSON), v.Report); err != nil {
			s.logger.Warn("stored report unreadable", "meal_request_id", req.ID, "error", err)
			v.Report = nil
		}
	}
	if req.PredictionJSON != "" {
		v.Prediction = &analysis.PredictionResult{}
		if err := json.Unmarshal([]byte(req.PredictionJSON), v.Prediction); err != nil {
			s.logger.Warn("stored prediction unreadable", "meal_request_id", req.ID, "error", err)
			v.Prediction = nil
		}
	}
	return v
}

// buildSubmission joins the client input with catalog data. Products keep
// the order they were submitted in; WeightBefore is the sum of the declared
// product weights.
func buildSubmission(in MealInput, found map[string]*domain.ProductWithPictures, beforeKey, afterKey string) *analysis.MealSubmission {
	sub := &analysis.MealSubmission{
		PersonID:      in.PersonID,
		Description:   in.Description,
		WeightAfter:   in.WeightAfter,
		PictureBefore: beforeKey,
		PictureAfter:  afterKey,
		Products:      make([]analysis.ProductEntry, 0, len(in.Products)),
	}
	for _, p := range in.Products {
		product := found[p.SKU]
		entry := analysis.ProductEntry{
			SKU:               product.SKU,
			Name:              product.Name,
			WeightInReq:       p.Weight,
			ReferencePictures: make([]analysis.ReferencePicture, 0, len(product.Pictures)),
		}
		for _, pic := range product.Pictures {
			ref := analysis.ReferencePicture{ImageURL: pic.StorageKey, Weight: pic.Weight}
			if pic.Plate != nil {
				ref.Plate = analysis.PlateGeometry{
					PlateID:       pic.Plate.PlateID,
					UpperDiameter: pic.Plate.UpperDiameter,
					LowerDiameter: pic.Plate.LowerDiameter,
					Depth:         pic.Plate.Depth,
				}
			}
			entry.ReferencePictures = append(entry.ReferencePictures, ref)
		}
		sub.Products = append(sub.Products, entry)
	}
	sub.WeightBefore = sub.DeclaredWeight()
	return sub
}

func duplicateSKU(products []MealProductInput) string {
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		if seen[p.SKU] {
			return p.SKU
		}
		seen[p.SKU] = true
	}
	return ""
}

func missingSKUs(skus []string, found map[string]*domain.ProductWithPictures) []string {
	var missing []string
	for _, sku := range skus {
		if _, ok := found[sku]; !ok {
			missing = append(missing, sku)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s *AnalysisService) saveMealImages(ctx context.Context, in MealInput) (string, string, error) {
	prefix := "meal_" + in.PersonID
	beforeKey, err := s.photoStg.Save(ctx, prefix+"_before", in.Before.MimeType, bytes.NewReader(in.Before.Data))
	if err != nil {
		return "", "", fmt.Errorf("failed to save before image: %w", err)
	}
	afterKey, err := s.photoStg.Save(ctx, prefix+"_after", in.After.MimeType, bytes.NewReader(in.After.Data))
	if err != nil {
		s.deleteImages(ctx, beforeKey)
		return "", "", fmt.Errorf("failed to save after image: %w", err)
	}
	return beforeKey, afterKey, nil
}

func (s *AnalysisService) deleteImages(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.photoStg.Delete(ctx, key); err != nil {
			s.logger.Error("failed to remove orphaned image", "storage_key", key, "error", err)
		}
	}
}

// loadImages reads every referenced image concurrently, keeping prompt order.
func (s *AnalysisService) loadImages(ctx context.Context, refs []analysis.ImageRef) ([]vision.Image, error) {
	images := make([]vision.Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageLoadLimit)
	for i, ref := range refs {
		g.Go(func() error {
			data, mimeType, err := photostore.Load(gctx, s.photoStg, ref.Path)
			if err != nil {
				return fmt.Errorf("failed to load %s image %s: %w", ref.Role, ref.Path, err)
			}
			images[i] = vision.Image{Ref: ref, MimeType: mimeType, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// callVision runs the analyzer under the configured timeout, retrying
// transport failures with exponential backoff. Malformed replies are not
// retried. The last result is returned alongside any error so its raw text
// can be kept.
func (s *AnalysisService) callVision(ctx context.Context, logger *slog.Logger, req *vision.Request) (*vision.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.RetryInterval
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.opts.MaxRetries)), ctx)

	var last *vision.AnalysisResult
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		result, err := s.visionAPI.Analyze(ctx, req)
		if result != nil {
			last = result
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, analysis.ErrMalformedPrediction) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("vision analysis failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)
	})
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return last, err
}

// failWith marks the request failed with appErr's client-facing message and
// returns appErr. It runs even when ctx is already done.
func (s *AnalysisService) failWith(ctx context.Context, logger *slog.Logger, id int64, raw string, appErr *apperr.Error) *apperr.Error {
	logger.Warn("meal analysis failed", appErr.LogFields()...)
	if err := s.meals.Fail(context.WithoutCancel(ctx), id, appErr.Message, raw); err != nil {
		logger.Error("failed to record meal analysis failure", "error", err)
	}
	return appErr
}

func classifyVisionError(op string, err error) *apperr.Error {
	switch {
	case errors.Is(err, analysis.ErrMalformedPrediction):
		return apperr.Wrap(err, apperr.KindMalformedPrediction, op, analysis.ErrMalformedPrediction.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(err, apperr.KindTimeout, op, "vision analysis timed out")
	default:
		return apperr.Wrap(err, apperr.KindExternal, op, "vision analysis failed")
	}
}
