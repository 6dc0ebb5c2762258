package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/log"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	"github.com/xiaoyuanzhu-com/omnitool/utils"
)

var uploadLogger = log.GetLogger("ApiUpload")

type upload struct {
	Name string
	Data []byte
}

func readPart(fh *multipart.FileHeader) (upload, error) {
	f, err := fh.Open()
	if err != nil {
		return upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, err
	}
	name := utils.SanitizeFilename(fh.Filename)
	if name == "" {
		name = "image"
	}
	return upload{Name: name, Data: data}, nil
}

// formFiles reads every file of a multipart field. Unusable requests are
// answered here; ok is false when the handler should stop.
func formFiles(c *gin.Context, field string) ([]upload, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "Upload is too large.")
			return nil, false
		}
		RespondBadRequest(c, "Expected a multipart form")
		return nil, false
	}
	headers := form.File[field]
	if len(headers) == 0 {
		RespondError(c, fmt.Errorf("%w: no file in field %q", tools.ErrInvalidInput, field))
		return nil, false
	}

	files := make([]upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readPart(fh)
		if err != nil {
			uploadLogger.Warn().Err(err).Str("file", fh.Filename).Msg("failed to read upload")
			RespondBadRequest(c, "Failed to read the uploaded file")
			return nil, false
		}
		files = append(files, u)
	}
	return files, true
}

// formFile reads the single file of a multipart field.
func formFile(c *gin.Context, field string) (upload, bool) {
	files, ok := formFiles(c, field)
	if !ok {
		return upload{}, false
	}
	return files[0], true
}
