package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/mealverify/internal/domain"
)

func newMealRequest(personID string) *domain.MealRequest {
	return &domain.MealRequest{
		PersonID:      personID,
		Description:   "lunch",
		WeightBefore:  300,
		WeightAfter:   100,
		PictureBefore: "before.jpg",
		PictureAfter:  "after.jpg",
		Products: []*domain.MealProductLine{
			{SKU: "MLK001", Name: "Milk", WeightInReq: 300},
		},
	}
}

func seedMilk(t *testing.T, products *ProductStore) {
	t.Helper()
	_, err := products.Create(context.Background(), "MLK001", "Milk")
	require.NoError(t, err)
}

func TestMealRequestStoreCreateAndGet(t *testing.T) {
	d := openTestDB(t)
	seedMilk(t, NewProductStore(d))
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	id, err := meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	req, err := meals.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "p1", req.PersonID)
	assert.Equal(t, "lunch", req.Description)
	assert.Equal(t, domain.MealStatusPending, req.Status)
	assert.Nil(t, req.Accurate)
	assert.Nil(t, req.CompletedAt)
	require.Len(t, req.Products, 1)
	assert.Equal(t, "MLK001", req.Products[0].SKU)
	assert.Equal(t, 300.0, req.Products[0].WeightInReq)
}

func TestMealRequestStoreCreate_UnknownProductRollsBack(t *testing.T) {
	d := openTestDB(t)
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	_, err := meals.Create(ctx, newMealRequest("p1"))
	assert.ErrorIs(t, err, ErrMissingReference)

	list, err := meals.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMealRequestStoreComplete(t *testing.T) {
	d := openTestDB(t)
	seedMilk(t, NewProductStore(d))
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	id, err := meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)

	require.NoError(t, meals.Complete(ctx, id, true, `{"accurate":true}`, `{"products":[]}`, "raw"))

	req, err := meals.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MealStatusCompleted, req.Status)
	require.NotNil(t, req.Accurate)
	assert.True(t, *req.Accurate)
	assert.Equal(t, `{"accurate":true}`, req.ReportJSON)
	assert.Equal(t, `{"products":[]}`, req.PredictionJSON)
	assert.Equal(t, "raw", req.RawResponse)
	assert.NotNil(t, req.CompletedAt)
}

func TestMealRequestStoreFail(t *testing.T) {
	d := openTestDB(t)
	seedMilk(t, NewProductStore(d))
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	id, err := meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)

	require.NoError(t, meals.Fail(ctx, id, "prediction response unusable", ""))

	req, err := meals.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MealStatusFailed, req.Status)
	assert.Equal(t, "prediction response unusable", req.Error)
	assert.Empty(t, req.RawResponse)
	assert.Nil(t, req.Accurate)

	assert.ErrorIs(t, meals.Fail(ctx, 9999, "x", ""), ErrNotFound)
}

func TestMealRequestStoreList(t *testing.T) {
	d := openTestDB(t)
	seedMilk(t, NewProductStore(d))
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	first, err := meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)
	second, err := meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)
	_, err = meals.Create(ctx, newMealRequest("p2"))
	require.NoError(t, err)

	list, err := meals.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Len(t, list[0].Products, 1)

	all, err := meals.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := meals.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMealRequestStoreGetByID_NotFound(t *testing.T) {
	meals := NewMealRequestStore(openTestDB(t))

	req, err := meals.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestMealRequestStoreList_AttachesOwnProductLines(t *testing.T) {
	d := openTestDB(t)
	products := NewProductStore(d)
	seedMilk(t, products)
	_, err := products.Create(context.Background(), "BRD001", "Bread")
	require.NoError(t, err)
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	bread := newMealRequest("p2")
	bread.Products = []*domain.MealProductLine{
		{SKU: "BRD001", Name: "Bread", WeightInReq: 80},
		{SKU: "MLK001", Name: "Milk", WeightInReq: 200},
	}
	_, err = meals.Create(ctx, newMealRequest("p1"))
	require.NoError(t, err)
	_, err = meals.Create(ctx, bread)
	require.NoError(t, err)

	list, err := meals.List(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Products, 2)
	assert.Equal(t, "BRD001", list[0].Products[0].SKU)
	assert.Equal(t, "MLK001", list[0].Products[1].SKU)
	assert.Equal(t, 200.0, list[0].Products[1].WeightInReq)

	req, err := meals.GetByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Len(t, req.Products, 2)
}

func TestMealRequestStoreList_ManyRequests(t *testing.T) {
	d := openTestDB(t)
	seedMilk(t, NewProductStore(d))
	meals := NewMealRequestStore(d)
	ctx := context.Background()

	// More requests than SQLite's legacy limit of 999 bound parameters.
	const n = 1100
	for i := 0; i < n; i++ {
		_, err := meals.Create(ctx, newMealRequest("p1"))
		require.NoError(t, err)
	}

	all, err := meals.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, n)
	for _, req := range all {
		require.Len(t, req.Products, 1)
	}
}
