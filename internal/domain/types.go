package domain

import "time"

type Plate struct {
	PlateID       string  `json:"plate_id"`
	UpperDiameter float64 `json:"upper_diameter"`
	LowerDiameter float64 `json:"lower_diameter"`
	Depth         float64 `json:"depth"`
}

type Product struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductPicture is a reference photo of a known weight of a product on a
// catalogued plate. Plate is populated when the store joins plates.
type ProductPicture struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	StorageKey string    `json:"image_key"`
	MimeType   string    `json:"mime_type"`
	Weight     float64   `json:"weight"`
	PlateID    string    `json:"plate_id"`
	Plate      *Plate    `json:"plate,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProductWithPictures is a catalog product together with its reference
// pictures, ordered by picture id.
type ProductWithPictures struct {
	Product
	Pictures []*ProductPicture `json:"pictures"`
}

type MealStatus string

const (
	MealStatusPending   MealStatus = "pending"
	MealStatusCompleted MealStatus = "completed"
	MealStatusFailed    MealStatus = "failed"
)

// MealRequest is one persisted meal analysis request and, once processed,
// its outcome.
type MealRequest struct {
	ID             int64              `json:"id"`
	PersonID       string             `json:"person_id"`
	Description    string             `json:"description"`
	WeightBefore   float64            `json:"weight_before"`
	WeightAfter    float64            `json:"weight_after"`
	PictureBefore  string             `json:"picture_before"`
	PictureAfter   string             `json:"picture_after"`
	Status         MealStatus         `json:"status"`
	Accurate       *bool              `json:"accurate,omitempty"`
	ReportJSON     string             `json:"-"`
	PredictionJSON string             `json:"-"`
	RawResponse    string             `json:"-"`
	Error          string             `json:"error,omitempty"`
	Products       []*MealProductLine `json:"products"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

type MealProductLine struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	WeightInReq float64 `json:"weight_in_req"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
}
