// Package imageio loads task images, scales them for display and encodes
// rendered or model-bound copies.
package imageio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-labeler/pkg/transform"
)

// Loader opens images of the configured formats.
type Loader struct {
	config Config
}

// Config holds loader settings.
type Config struct {
	// Extensions lists accepted file extensions without the dot.
	Extensions []string
}

// DefaultExtensions are the formats a task may contain.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp"}

// New creates a Loader accepting DefaultExtensions.
func New() *Loader {
	return &Loader{config: Config{Extensions: DefaultExtensions}}
}

// NewWithConfig creates a Loader with custom configuration
func NewWithConfig(config Config) *Loader {
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions
	}
	return &Loader{config: config}
}

// Supported reports whether path has an accepted extension.
func (l *Loader) Supported(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range l.config.Extensions {
		if strings.EqualFold(ext, strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// Open decodes the image at path.
func (l *Loader) Open(path string) (image.Image, error) {
	if !l.Supported(path) {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("failed to rewind image file: %w", err)
		}
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// Size returns the pixel dimensions of the image at path without decoding
// the pixel data.
func (l *Loader) Size(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Display scales img to the on-screen size implied by tf.
func Display(img image.Image, tf transform.Transform) *image.NRGBA {
	w, h := tf.DisplaySize()
	b := img.Bounds()
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// Save writes img to path in format (png, jpg or webp). An empty format is
// taken from the extension.
func Save(img image.Image, path, format string, quality int, lossless bool) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	var err error
	switch strings.ToLower(format) {
	case "webp":
		var f *os.File
		f, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		err = webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		err = imaging.Save(img, path)
	case "jpg", "jpeg":
		err = imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// EncodeBase64 downsizes img so its longer side is at most maxDim and
// returns it base64 encoded, ready for a vision model request.
func EncodeBase64(img image.Image, format string, maxDim, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
