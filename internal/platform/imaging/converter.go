// Package imaging turns single-image documents into the grayscale PNG pages
// the recognizer consumes.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"log/slog"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/pipeline"
)

// DefaultMaxDimension bounds the longer side of a page image in pixels.
const DefaultMaxDimension = 4000

// Converter implements pipeline.Converter for raster images.
type Converter struct {
	maxDimension int
	logger       *slog.Logger
}

var _ pipeline.Converter = (*Converter)(nil)

// Option configures a Converter.
type Option func(*Converter)

// WithMaxDimension downscales pages whose longer side exceeds px. Zero
// disables scaling.
func WithMaxDimension(px int) Option {
	return func(c *Converter) { c.maxDimension = px }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l.With("component", "imaging") }
}

// NewConverter creates a Converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		maxDimension: DefaultMaxDimension,
		logger:       slog.Default().With("component", "imaging"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert decodes data and returns it as a single page. Unknown formats and
// corrupt images fail permanently.
func (c *Converter) Convert(ctx context.Context, filename string, data []byte) ([]pipeline.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.Permanent(fmt.Errorf("%s is empty", filename))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, domain.Permanent(fmt.Errorf("unsupported document format: %s", filename))
	}
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode %s: %w", filename, err))
	}

	page := c.prepare(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}

	c.logger.Debug("document converted",
		"file", filename,
		"format", format,
		"width", page.Bounds().Dx(),
		"height", page.Bounds().Dy())

	return []pipeline.Page{{Number: 1, Image: buf.Bytes()}}, nil
}

// prepare converts img to grayscale, scaling it down to the configured
// maximum dimension.
func (c *Converter) prepare(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := scaledSize(b.Dx(), b.Dy(), c.maxDimension)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func scaledSize(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
