package web

import (
	"net/http"
	"strconv"

	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/service"
)

func (s *Server) handleListPlates(w http.ResponseWriter, r *http.Request) {
	plates, err := s.catalog.ListPlates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, plates)
}

func (s *Server) handleGetPlate(w http.ResponseWriter, r *http.Request) {
	plate, err := s.catalog.GetPlate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, plate)
}

func (s *Server) handleCreatePlate(w http.ResponseWriter, r *http.Request) {
	var in service.PlateInput
	if err := decodeBody(r, "create plate", &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	plate, err := s.catalog.CreatePlate(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, plate)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.catalog.ListProducts(r.Context(), service.ProductQuery{
		Page:  page,
		Limit: limit,
		SKU:   q.Get("sku"),
		Name:  q.Get("name"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// queryInt parses an optional positive integer query parameter. Empty means 0.
func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.NewValidation("parse query", "%s must be a positive integer", name)
	}
	return n, nil
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in service.ProductInput
	if err := decodeBody(r, "create product", &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	product, err := s.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), r.PathValue("sku"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, "update product", &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	product, err := s.catalog.UpdateProduct(r.Context(), r.PathValue("sku"), body.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteProduct(r.Context(), r.PathValue("sku")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
