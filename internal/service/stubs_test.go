package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vbonduro/mealverify/internal/db"
	"github.com/vbonduro/mealverify/internal/photostore"
	"github.com/vbonduro/mealverify/internal/store"
	"github.com/vbonduro/mealverify/internal/vision"
)

// stubVision is a scripted VisionAnalyzer. Each call consumes the next
// response; the last one repeats.
type stubVision struct {
	mu        sync.Mutex
	responses []stubResponse
	calls     int
	requests  []*vision.Request
	block     bool
}

type stubResponse struct {
	raw string
	err error
}

func (s *stubVision) Analyze(ctx context.Context, req *vision.Request) (*vision.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.requests = append(s.requests, req)
	block := s.block
	var resp stubResponse
	if len(s.responses) > 0 {
		resp = s.responses[min(s.calls, len(s.responses))-1]
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("failed to call model: %w", ctx.Err())
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return vision.Result(resp.raw)
}

func replying(raws ...string) *stubVision {
	s := &stubVision{}
	for _, raw := range raws {
		s.responses = append(s.responses, stubResponse{raw: raw})
	}
	return s
}

// stubPhotoStore is a minimal in-memory photostore.PhotoStore for tests.
type stubPhotoStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	mimes   map[string]string
	next    int
	saveErr error
}

func newStubPhotoStore() *stubPhotoStore {
	return &stubPhotoStore{saved: make(map[string][]byte), mimes: make(map[string]string)}
}

func (s *stubPhotoStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	key := fmt.Sprintf("%s_%d", prefix, s.next)
	s.saved[key] = data
	s.mimes[key] = mimeType
	return key, nil
}

func (s *stubPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[key]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", key, photostore.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), s.mimes[key], nil
}

func (s *stubPhotoStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.saved[key]; !ok {
		return fmt.Errorf("%s: %w", key, photostore.ErrNotFound)
	}
	delete(s.saved, key)
	delete(s.mimes, key)
	return nil
}

func (s *stubPhotoStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type testEnv struct {
	catalog  *CatalogService
	analysis *AnalysisService
	meals    *store.MealRequestStore
	products *store.ProductStore
	photos   *stubPhotoStore
	vision   *stubVision
}

func newTestEnv(t *testing.T, vis *stubVision, opts AnalysisOptions) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	photos := newStubPhotoStore()
	products := store.NewProductStore(d)
	meals := store.NewMealRequestStore(d)
	if vis == nil {
		vis = replying(`{"products":[]}`)
	}

	return &testEnv{
		catalog: NewCatalogService(
			store.NewPlateStore(d),
			products,
			store.NewPictureStore(d),
			photos,
			slog.Default(),
		),
		analysis: NewAnalysisService(meals, products, vis, photos, opts, slog.Default()),
		meals:    meals,
		products: products,
		photos:   photos,
		vision:   vis,
	}
}

func jpeg(b ...byte) Upload {
	return Upload{MimeType: "image/jpeg", Data: append([]byte{0xFF, 0xD8, 0xFF}, b...)}
}
