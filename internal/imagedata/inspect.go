package imagedata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TargetAspect is the width/height ratio the recomposition aims for (4:5).
const TargetAspect = 4.0 / 5.0

// Info describes an uploaded image.
type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Camera is "Make Model" from EXIF, when present.
	Camera string `json:"camera,omitempty"`
	// TakenAt is the EXIF capture time, when present.
	TakenAt *time.Time `json:"takenAt,omitempty"`
}

// Aspect returns width/height, or 0 for an empty image.
func (i Info) Aspect() float64 {
	if i.Height == 0 {
		return 0
	}
	return float64(i.Width) / float64(i.Height)
}

// NeedsOutpaint reports whether the image is wider than 4:5 and so cannot be
// cropped to 4:5 without losing height; the model has to extend it vertically.
func (i Info) NeedsOutpaint() bool {
	return i.Aspect() > TargetAspect
}

// Inspect reads the image header for dimensions and, when available, EXIF
// camera and capture time. EXIF failures are not errors: most PNG and WebP
// uploads simply have none.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	info := &Info{Format: format, Width: cfg.Width, Height: cfg.Height}

	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("format", format).Msg("No EXIF metadata in upload")
		return info, nil
	}

	camera := strings.TrimSpace(strings.TrimSpace(exifData.Make) + " " + strings.TrimSpace(exifData.Model))
	info.Camera = camera
	if taken := exifData.DateTimeOriginal(); !taken.IsZero() {
		info.TakenAt = &taken
	}

	return info, nil
}
