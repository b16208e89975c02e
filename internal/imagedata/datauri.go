// Package imagedata converts between raw image bytes and base64 data URIs,
// and inspects uploaded images before they are sent for recomposition.
package imagedata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultMIMEType is assumed when a data URI carries no recognizable image MIME type.
const DefaultMIMEType = "image/png"

// dataURIPrefix matches "data:image/<subtype>;base64," at the start of a data URI.
var dataURIPrefix = regexp.MustCompile(`^data:(image/[a-zA-Z0-9.+-]+);base64,`)

// ErrNotImage is returned when uploaded bytes are not a recognizable image.
var ErrNotImage = errors.New("file is not a supported image")

// DataURI is a parsed image data URI.
type DataURI struct {
	MIMEType string
	// Payload is the base64 text after the comma, not decoded.
	Payload string
}

// ParseDataURI separates the MIME type from the base64 payload. A string without
// a recognizable "data:image/...;base64," header is treated as a bare base64
// payload of type DefaultMIMEType.
func ParseDataURI(uri string) DataURI {
	m := dataURIPrefix.FindStringSubmatch(uri)
	if m == nil {
		return DataURI{MIMEType: DefaultMIMEType, Payload: uri}
	}
	return DataURI{MIMEType: m[1], Payload: uri[len(m[0]):]}
}

// Decode returns the raw bytes of the payload.
func (d DataURI) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return data, nil
}

// String renders the data URI.
func (d DataURI) String() string {
	return "data:" + d.MIMEType + ";base64," + d.Payload
}

// EncodeDataURI wraps raw bytes as a data URI with the given MIME type.
func EncodeDataURI(mimeType string, data []byte) string {
	return DataURI{MIMEType: mimeType, Payload: base64.StdEncoding.EncodeToString(data)}.String()
}

// EncodePNG wraps raw image bytes as an image/png data URI, whatever their
// actual encoding; the recomposed result is always offered as PNG.
func EncodePNG(data []byte) string {
	return EncodeDataURI("image/png", data)
}

// FromUpload detects the image type of uploaded bytes and returns them as a
// data URI. hints are a client-declared file name or MIME type, consulted
// only when the content itself is unrecognized binary (see DetectImageType).
// Content positively identified as something else is rejected with
// ErrNotImage.
func FromUpload(data []byte, hints ...string) (string, error) {
	mimeType, err := DetectImageType(data, hints...)
	if err != nil {
		return "", err
	}
	return EncodeDataURI(mimeType, data), nil
}

// SniffMIMEType detects the content type of data, with parameters stripped.
func SniffMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
