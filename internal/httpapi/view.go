package httpapi

import (
	"hash/fnv"
	"net/url"
	"strconv"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/session"
)

// sessionView is the JSON form of a session. Images are referenced by URL
// instead of being embedded, so a response stays a few hundred bytes no
// matter how large the images are.
type sessionView struct {
	ID           string          `json:"id"`
	OriginalURL  string          `json:"originalUrl,omitempty"`
	EditedURL    string          `json:"editedUrl,omitempty"`
	Prompt       string          `json:"prompt"`
	IsProcessing bool            `json:"isProcessing"`
	Error        string          `json:"error,omitempty"`
	Image        *imagedata.Info `json:"image,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func newSessionView(es *session.EditSession) sessionView {
	v := sessionView{
		ID:           es.ID,
		Prompt:       es.Prompt,
		IsProcessing: es.IsProcessing,
		Error:        es.Error,
		Image:        es.Image,
		UpdatedAt:    es.UpdatedAt,
	}
	base := "/api/sessions/" + url.PathEscape(es.ID)
	if es.HasOriginal() {
		v.OriginalURL = base + "/original?v=" + imageVersion(es.Original)
	}
	if es.Edited != "" {
		v.EditedURL = base + "/edited?v=" + imageVersion(es.Edited)
	}
	return v
}

// imageVersion is a short cache key for a data URI, built from its length
// and a sample from the middle of the payload.
func imageVersion(uri string) string {
	const sample = 512
	mid := len(uri) / 2
	lo, hi := max(mid-sample/2, 0), min(mid+sample/2, len(uri))

	h := fnv.New64a()
	h.Write([]byte(uri[lo:hi]))
	return strconv.FormatInt(int64(len(uri)), 36) + "-" + strconv.FormatUint(h.Sum64(), 36)
}
