package imagedata

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"path/filepath"
	"strings"

	"github.com/evanoberholster/imagemeta/imagetype"
)

// isoBrands maps ISO base media file brands to image MIME types.
var isoBrands = map[string]string{
	"heic": "image/heic",
	"heix": "image/heic",
	"heim": "image/heic",
	"heis": "image/heic",
	"hevc": "image/heic-sequence",
	"mif1": "image/heif",
	"msf1": "image/heif-sequence",
	"avif": "image/avif",
	"avis": "image/avif",
}

// extensionTypes covers image extensions missing from many system MIME tables.
var extensionTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".jxl":  "image/jxl",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
}

// DetectImageType returns the MIME type of an image, checking in order:
// content sniffing, the registered image decoders (TIFF, BMP, WebP, ...),
// the HEIF/AVIF container brand, and SVG markup. Binary content none of
// those recognize goes through the imagemeta header scanner (camera raw,
// PSD, JPEG 2000) and then an image type declared by hints (file name or
// MIME type). Anything else yields ErrNotImage.
func DetectImageType(data []byte, hints ...string) (string, error) {
	sniffed := SniffMIMEType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, nil
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format, nil
	}
	if t := isoImageType(data); t != "" {
		return t, nil
	}
	if isSVG(data) {
		return "image/svg+xml", nil
	}
	if sniffed == "application/octet-stream" {
		if t := scannedImageType(data); t != "" {
			return t, nil
		}
		for _, h := range hints {
			if t := hintedImageType(h); t != "" {
				return t, nil
			}
		}
	}
	return "", fmt.Errorf("%w (detected %s)", ErrNotImage, sniffed)
}

// isoImageType reads the major and compatible brands of an ISO BMFF "ftyp" box.
func isoImageType(data []byte) string {
	if len(data) < 16 || string(data[4:8]) != "ftyp" {
		return ""
	}
	size := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if size < 16 || size > len(data) {
		size = len(data)
	}
	if t, ok := isoBrands[string(data[8:12])]; ok {
		return t
	}
	for i := 16; i+4 <= size; i += 4 {
		if t, ok := isoBrands[string(data[i:i+4])]; ok {
			return t
		}
	}
	return ""
}

// scannedImageType identifies an image from its header magic numbers.
func scannedImageType(data []byte) string {
	it, err := imagetype.Buf(data)
	if err != nil || it.IsUnknown() {
		return ""
	}
	if t := it.String(); strings.HasPrefix(t, "image/") {
		return t
	}
	return ""
}

// isSVG reports whether data starts, after an optional XML prolog, comments
// and doctype, with an <svg> element.
func isSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	s := strings.TrimPrefix(string(head), "\ufeff")
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "<?"):
			end := strings.Index(s, "?>")
			if end < 0 {
				return false
			}
			s = s[end+2:]
		case strings.HasPrefix(s, "<!--"):
			end := strings.Index(s, "-->")
			if end < 0 {
				return false
			}
			s = s[end+3:]
		case strings.HasPrefix(s, "<!DOCTYPE"), strings.HasPrefix(s, "<!doctype"):
			end := strings.IndexByte(s, '>')
			if end < 0 {
				return false
			}
			s = s[end+1:]
		default:
			return strings.HasPrefix(s, "<svg")
		}
	}
}

// hintedImageType resolves a declared MIME type or file name to an image type.
func hintedImageType(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(hint); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	ext := strings.ToLower(filepath.Ext(hint))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}
