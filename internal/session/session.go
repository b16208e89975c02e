// Package session holds the edit-session state machine and the controller
// that drives it.
//
// An EditSession is only ever changed through Apply, a pure transition
// function over the six events a user can cause (select a file, change the
// prompt, start an edit, finish it successfully or with an error, reset).
// The Controller loads a session from a Store, applies events under a
// per-session lock and persists the result; it calls the image editor
// exactly once per submitted edit.
package session

import (
	"errors"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
)

var (
	// ErrNotFound is returned when a session ID is unknown or has expired.
	ErrNotFound = errors.New("session not found")

	// ErrEditInProgress is returned when an edit is submitted for a session
	// that is still processing the previous one.
	ErrEditInProgress = errors.New("an edit is already in progress for this session")

	// ErrUploadTooLarge is returned when an uploaded file exceeds the
	// controller's size limit.
	ErrUploadTooLarge = errors.New("uploaded file is too large")
)

// EditSession is the state of one user's editing session.
//
// IsProcessing is true only between EditStarted and the matching
// EditSucceeded/EditFailed. Edited is non-empty only after a successful edit
// since the last reset.
type EditSession struct {
	ID string `json:"id"`
	// Original is the uploaded image as a data URI.
	Original string `json:"original,omitempty"`
	// Edited is the recomposed image as a data:image/png;base64 URI.
	Edited       string `json:"edited,omitempty"`
	Prompt       string `json:"prompt"`
	IsProcessing bool   `json:"isProcessing"`
	Error        string `json:"error,omitempty"`
	// Image describes Original; nil when inspection failed.
	Image *imagedata.Info `json:"image,omitempty"`
	// EditID identifies the in-flight edit so a late result cannot land on
	// a session that was reset in the meantime.
	EditID string `json:"editId,omitempty"`
	// EditStartedAt is set while processing. A session that stays processing
	// long past the edit timeout was abandoned by a crashed or failed writer.
	EditStartedAt time.Time `json:"editStartedAt,omitzero"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// New returns an empty session with the given ID.
func New(id string) *EditSession {
	return &EditSession{ID: id, UpdatedAt: time.Now().UTC()}
}

// HasOriginal reports whether an image has been selected.
func (s *EditSession) HasOriginal() bool {
	return s.Original != ""
}

// HistoryItem records one successful edit.
type HistoryItem struct {
	ID string `json:"id"`
	// Original and Edited are image sources: data URIs or fetchable URLs,
	// depending on the history store.
	Original  string    `json:"original"`
	Edited    string    `json:"edited"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}
