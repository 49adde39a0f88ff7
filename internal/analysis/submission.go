// Package analysis holds the meal verification core: assembling the
// vision-model prompt for a submission and comparing the model's prediction
// against the weights the user declared.
//
// Nothing in this package performs I/O. Image bytes, storage and the model
// call itself belong to the caller.
package analysis

// MealSubmission is one normalized before/after meal record. Weights are in
// grams. An empty Description means none was provided.
type MealSubmission struct {
	PersonID      string
	Description   string
	WeightBefore  float64
	WeightAfter   float64
	PictureBefore string
	PictureAfter  string
	Products      []ProductEntry
}

// ProductEntry is a product the user declared as part of the meal.
type ProductEntry struct {
	SKU               string
	Name              string
	WeightInReq       float64
	ReferencePictures []ReferencePicture
}

// ReferencePicture is a calibration photo of a product portion of known
// weight on a known plate.
type ReferencePicture struct {
	ImageURL string
	Weight   float64
	Plate    PlateGeometry
}

// PlateGeometry dimensions are in centimetres.
type PlateGeometry struct {
	PlateID       string
	UpperDiameter float64
	LowerDiameter float64
	Depth         float64
}

// DeclaredWeight sums WeightInReq across all products.
func (s *MealSubmission) DeclaredWeight() float64 {
	var total float64
	for _, p := range s.Products {
		total += p.WeightInReq
	}
	return total
}
