package web

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/service"
)

// handleSubmitMeal accepts a meal submission as multipart form data and
// responds with the verification report once the analysis finishes.
func (s *Server) handleSubmitMeal(w http.ResponseWriter, r *http.Request) {
	const op = "submit meal"
	if err := parseMultipart(w, r, op); err != nil {
		s.writeError(w, r, err)
		return
	}

	in, err := s.parseMealForm(r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	v, err := s.analysis.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, v)
}

// parseMealForm reads person_id, weight_after, description, the
// comma-separated products_sku and products_weights lists and the before and
// after images. Images come either as two "images" files in before, after
// order or as picture_before and picture_after.
func (s *Server) parseMealForm(r *http.Request, op string) (service.MealInput, error) {
	in := service.MealInput{
		PersonID:    strings.TrimSpace(r.FormValue("person_id")),
		Description: r.FormValue("description"),
	}

	rawAfter := strings.TrimSpace(r.FormValue("weight_after"))
	if rawAfter == "" || in.PersonID == "" {
		return in, apperr.NewValidation(op, "missing required fields: weight_after or person_id")
	}
	after, err := parseWeight(rawAfter)
	if err != nil {
		return in, apperr.NewValidation(op, "weight_after must be a finite number")
	}
	in.WeightAfter = after

	products, err := parseProducts(op, r.FormValue("products_sku"), r.FormValue("products_weights"))
	if err != nil {
		return in, err
	}
	in.Products = products

	in.Before, in.After, err = s.mealImages(r, op)
	if err != nil {
		return in, err
	}
	return in, nil
}

// parseProducts pairs the SKU and weight lists position by position.
func parseProducts(op, rawSKUs, rawWeights string) ([]service.MealProductInput, error) {
	if strings.TrimSpace(rawSKUs) == "" || strings.TrimSpace(rawWeights) == "" {
		return nil, apperr.NewValidation(op, "missing required fields: products_sku or products_weights")
	}
	skus := splitList(rawSKUs)
	weights := splitList(rawWeights)
	if len(skus) != len(weights) {
		return nil, apperr.NewValidation(op, "products_sku and products_weights must have the same number of items")
	}

	products := make([]service.MealProductInput, len(skus))
	for i, sku := range skus {
		weight, err := parseWeight(weights[i])
		if err != nil {
			return nil, apperr.NewValidation(op, "products_weights[%d] must be a finite number", i)
		}
		products[i] = service.MealProductInput{SKU: sku, Weight: weight}
	}
	return products, nil
}

// parseWeight parses a decimal weight. NaN and infinities, which
// strconv.ParseFloat accepts, are rejected.
func parseWeight(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("weight %q is not a finite number", raw)
	}
	return v, nil
}

// splitList splits a comma-separated form value, dropping double quotes and
// surrounding whitespace. `"A1", "B2"` and `A1,B2` both yield [A1 B2].
func splitList(raw string) []string {
	parts := strings.Split(strings.ReplaceAll(raw, `"`, ""), ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func (s *Server) mealImages(r *http.Request, op string) (service.Upload, service.Upload, error) {
	if files := r.MultipartForm.File["images"]; len(files) > 0 {
		if len(files) != 2 {
			return service.Upload{}, service.Upload{}, apperr.NewValidation(op, "images must contain exactly two files: before and after")
		}
		before, err := s.fileImage(files[0], op, "images[0]")
		if err != nil {
			return service.Upload{}, service.Upload{}, err
		}
		after, err := s.fileImage(files[1], op, "images[1]")
		if err != nil {
			return service.Upload{}, service.Upload{}, err
		}
		return before, after, nil
	}

	before, err := s.formImage(r, op, "picture_before")
	if err != nil {
		return service.Upload{}, service.Upload{}, err
	}
	after, err := s.formImage(r, op, "picture_after")
	if err != nil {
		return service.Upload{}, service.Upload{}, err
	}
	return before, after, nil
}

func (s *Server) handleListMeals(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.analysis.List(r.Context(), r.URL.Query().Get("person_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, reqs)
}

func (s *Server) handleGetMeal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.analysis.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, req)
}
