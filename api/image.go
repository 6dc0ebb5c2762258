package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/omnitool/tools"
	imagetool "github.com/xiaoyuanzhu-com/omnitool/tools/image"
)

// OptimizeImage handles POST /api/image/optimize (multipart "file",
// "maxWidth", "maxHeight", "targetSizeMB", "format"). Omitted fields take
// the configured defaults.
func (h *Handlers) OptimizeImage(c *gin.Context) {
	f, ok := formFile(c, "file")
	if !ok {
		return
	}
	opts, err := imageOptions(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	op, err := h.server.Image().Submit(c.Request.Context(), f.Name, f.Data, opts)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondAccepted(c, h.server.Track(op))
}

func imageOptions(c *gin.Context) (imagetool.Options, error) {
	var opts imagetool.Options
	var err error
	if opts.MaxWidth, err = positiveInt(c.PostForm("maxWidth")); err != nil {
		return opts, fmt.Errorf("%w: maxWidth: %v", tools.ErrInvalidInput, err)
	}
	if opts.MaxHeight, err = positiveInt(c.PostForm("maxHeight")); err != nil {
		return opts, fmt.Errorf("%w: maxHeight: %v", tools.ErrInvalidInput, err)
	}
	if v := c.PostForm("targetSizeMB"); v != "" {
		mb, err := strconv.ParseFloat(v, 64)
		if err != nil || mb <= 0 {
			return opts, fmt.Errorf("%w: targetSizeMB must be a positive number", tools.ErrInvalidInput)
		}
		opts.TargetSizeBytes = int64(mb * 1024 * 1024)
	}
	opts.Format = c.PostForm("format")
	return opts, nil
}

func positiveInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}
