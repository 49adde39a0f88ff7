package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/mealverify/internal/apperr"
	"github.com/vbonduro/mealverify/internal/service"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing standard (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// parseMultipart parses a multipart body capped at maxPhotoSize.
func parseMultipart(w http.ResponseWriter, r *http.Request, op string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(err, apperr.KindValidation, op, "request body too large")
		}
		return apperr.Wrap(err, apperr.KindValidation, op, "failed to parse form")
	}
	return nil
}

// formImage reads the named file field of a parsed multipart form.
func (s *Server) formImage(r *http.Request, op, field string) (service.Upload, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return service.Upload{}, apperr.NewValidation(op, "%s file required", field)
	}
	defer closeWithLog(file, "upload file", s.logger)
	return readImage(file, op, field)
}

func (s *Server) fileImage(fh *multipart.FileHeader, op, field string) (service.Upload, error) {
	file, err := fh.Open()
	if err != nil {
		return service.Upload{}, apperr.Wrap(err, apperr.KindInternal, op, "failed to read upload")
	}
	defer closeWithLog(file, "upload file", s.logger)
	return readImage(file, op, field)
}

// readImage reads an uploaded file and checks it is a supported image by
// sniffing its content. The client-declared Content-Type is ignored.
func readImage(r io.Reader, op, field string) (service.Upload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return service.Upload{}, apperr.Wrap(err, apperr.KindInternal, op, "failed to read upload")
	}
	mimeType, ok := allowedImageMIME(data)
	if !ok {
		return service.Upload{}, apperr.NewValidation(op, "%s: unsupported image format", field)
	}
	return service.Upload{MimeType: mimeType, Data: data}, nil
}
