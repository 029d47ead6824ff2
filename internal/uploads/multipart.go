package uploads

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

// multipartOverhead covers form fields and boundaries around the file part.
const multipartOverhead = 1 << 20

// File is an opened multipart file part.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
	closer   io.Closer
}

func (f *File) Close() error {
	return f.closer.Close()
}

// ReadFile opens the multipart part named field. The request body is capped
// a little above maxBytes so oversized uploads fail without being buffered.
// A missing or generic content type is sniffed from the first bytes.
func ReadFile(c *gin.Context, field string, maxBytes int64) (*File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Validation(field, "file exceeds the maximum size of %s", storage.FormatBytes(maxBytes))
		}
		return nil, apperrors.Validation(field, "%s is required", field)
	}
	return open(header)
}

func open(header *multipart.FileHeader) (*File, error) {
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.Infra("open upload", err)
	}

	file := &File{Name: header.Filename, Size: header.Size, Body: f, closer: f}
	file.MimeType = strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.IndexByte(file.MimeType, ';'); i >= 0 {
		file.MimeType = strings.TrimSpace(file.MimeType[:i])
	}

	if file.MimeType == "" || file.MimeType == "application/octet-stream" {
		head := make([]byte, 512)
		n, err := io.ReadFull(f, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, apperrors.Infra("read upload", err)
		}
		head = head[:n]
		file.MimeType = strings.SplitN(http.DetectContentType(head), ";", 2)[0]
		file.Body = io.MultiReader(bytes.NewReader(head), f)
	}
	return file, nil
}
