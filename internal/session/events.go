package session

import (
	"fmt"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
)

// Event is a user-caused change to an EditSession.
type Event interface {
	eventName() string
}

// FileSelected sets the original image and clears any previous result.
type FileSelected struct {
	DataURI string
	// Info is optional inspection data for the image.
	Info *imagedata.Info
}

// PromptChanged replaces the prompt verbatim.
type PromptChanged struct {
	Text string
}

// EditStarted marks the session as processing.
type EditStarted struct {
	EditID string
	At     time.Time
}

// EditSucceeded stores the recomposed image.
type EditSucceeded struct {
	DataURI string
}

// EditFailed stores the failure message.
type EditFailed struct {
	Message string
}

// ResetScope selects what Reset clears.
type ResetScope string

const (
	// ScopeAll clears every field (new session).
	ScopeAll ResetScope = "all"
	// ScopeEdited clears only the result (retry with the same image and prompt).
	ScopeEdited ResetScope = "edited"
)

// ParseResetScope validates a scope string. An empty string means ScopeAll.
func ParseResetScope(s string) (ResetScope, error) {
	switch ResetScope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeEdited:
		return ScopeEdited, nil
	default:
		return "", fmt.Errorf("invalid reset scope %q (want %q or %q)", s, ScopeAll, ScopeEdited)
	}
}

// Reset clears the session.
type Reset struct {
	Scope ResetScope
}

func (FileSelected) eventName() string  { return "file_selected" }
func (PromptChanged) eventName() string { return "prompt_changed" }
func (EditStarted) eventName() string   { return "edit_started" }
func (EditSucceeded) eventName() string { return "edit_succeeded" }
func (EditFailed) eventName() string    { return "edit_failed" }
func (Reset) eventName() string         { return "reset" }

// Apply returns the state that results from applying ev to s. s is not
// modified. UpdatedAt is left to the caller.
func Apply(s EditSession, ev Event) EditSession {
	switch e := ev.(type) {
	case FileSelected:
		s.Original = e.DataURI
		s.Image = e.Info
		s.Edited = ""
		s.Error = ""
	case PromptChanged:
		s.Prompt = e.Text
	case EditStarted:
		s.IsProcessing = true
		s.EditID = e.EditID
		s.EditStartedAt = e.At
		s.Error = ""
	case EditSucceeded:
		s.Edited = e.DataURI
		s.IsProcessing = false
		s.EditID = ""
		s.EditStartedAt = time.Time{}
	case EditFailed:
		s.Error = e.Message
		s.IsProcessing = false
		s.EditID = ""
		s.EditStartedAt = time.Time{}
	case Reset:
		if e.Scope == ScopeEdited {
			s.Edited = ""
			break
		}
		s = EditSession{ID: s.ID, UpdatedAt: s.UpdatedAt}
	}
	return s
}
