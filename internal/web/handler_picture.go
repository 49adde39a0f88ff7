package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/service"
)

// handleUploadPicture accepts a multipart form with image, sku, weight and
// plate_id fields.
func (s *Server) handleUploadPicture(w http.ResponseWriter, r *http.Request) {
	const op = "upload picture"
	if err := parseMultipart(w, r, op); err != nil {
		s.writeError(w, r, err)
		return
	}

	weight, err := parseWeight(r.FormValue("weight"))
	if err != nil {
		s.writeError(w, r, apperr.NewValidation(op, "weight must be a finite number"))
		return
	}
	image, err := s.formImage(r, op, "image")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pic, err := s.catalog.AddPicture(r.Context(), service.PictureInput{
		SKU:     r.FormValue("sku"),
		Weight:  weight,
		PlateID: strings.TrimSpace(r.FormValue("plate_id")),
		Image:   image,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, pic)
}

func (s *Server) handleListPictures(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.catalog.ListPictures(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, grouped)
}

func (s *Server) handleListProductPictures(w http.ResponseWriter, r *http.Request) {
	pictures, err := s.catalog.ListProductPictures(r.Context(), r.PathValue("sku"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, pictures)
}

func (s *Server) handleGetPicture(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pic, err := s.catalog.GetPicture(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, pic)
}

func (s *Server) handleGetPictureImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reader, mimeType, err := s.catalog.PictureImage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeWithLog(reader, "picture reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write picture failed", "request_id", requestID(r), "picture_id", id, "error", err)
	}
}

func (s *Server) handleDeletePicture(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.catalog.DeletePicture(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProductPictures(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.DeleteProductPictures(r.Context(), r.PathValue("sku"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}
