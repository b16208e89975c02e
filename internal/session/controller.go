package session

import (
	"context"
	"fmt"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxUploadBytes caps uploaded images when no limit is configured.
	DefaultMaxUploadBytes = 20 << 20

	// DefaultEditTimeout is the editor deadline assumed when none is configured.
	DefaultEditTimeout = 120 * time.Second

	// staleEditMargin is added to the edit timeout before a processing
	// session is considered abandoned.
	staleEditMargin = 30 * time.Second
)

// MsgSaveFailed replaces an edit result that could not be persisted.
const MsgSaveFailed = "The edit finished but its result could not be saved. Please try again."

// Store persists sessions. Get returns ErrNotFound for unknown IDs.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*EditSession, error)
	Put(ctx context.Context, s *EditSession) error
}

// HistoryStore records successful edits. Record assigns the item ID when
// it is empty and returns the stored item. List returns newest first.
type HistoryStore interface {
	Record(ctx context.Context, item HistoryItem) (*HistoryItem, error)
	List(ctx context.Context, limit int) ([]HistoryItem, error)
}

// Editor recomposes an image. Errors carry a user-facing message.
type Editor interface {
	EditImage(ctx context.Context, originalImage, prompt string) (string, error)
}

// Controller applies user actions to stored sessions.
type Controller struct {
	store          Store
	editor         Editor
	history        HistoryStore
	locker         Locker
	maxUploadBytes int
	staleAfter     time.Duration
	now            func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory records every successful edit in h.
func WithHistory(h HistoryStore) Option {
	return func(c *Controller) {
		c.history = h
	}
}

// WithLocker replaces the in-process per-session lock.
func WithLocker(l Locker) Option {
	return func(c *Controller) {
		c.locker = l
	}
}

// WithMaxUploadBytes limits the size of uploaded images. Zero or negative
// keeps DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}

// WithEditTimeout sets the editor deadline. A session still processing
// after d plus a fixed margin is treated as abandoned and accepts a new
// edit. Zero or negative keeps DefaultEditTimeout.
func WithEditTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.staleAfter = d + staleEditMargin
		}
	}
}

// NewController creates a Controller.
func NewController(store Store, editor Editor, opts ...Option) *Controller {
	c := &Controller{
		store:          store,
		editor:         editor,
		locker:         NewKeyedMutex(),
		maxUploadBytes: DefaultMaxUploadBytes,
		staleAfter:     DefaultEditTimeout + staleEditMargin,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxUploadBytes returns the upload size limit.
func (c *Controller) MaxUploadBytes() int {
	return c.maxUploadBytes
}

// Create starts an empty session.
func (c *Controller) Create(ctx context.Context) (*EditSession, error) {
	s := New(uuid.New().String())
	s.UpdatedAt = c.now()
	if err := c.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("sessionId", s.ID).Msg("Session created")
	return s, nil
}

// Get returns the current state of a session.
func (c *Controller) Get(ctx context.Context, id string) (*EditSession, error) {
	return c.store.Get(ctx, id)
}

// SelectFile stores data as the session's original image. Only images are
// accepted; the result of the previous edit and any error are cleared.
// hints are the client-declared file name or MIME type, used only for
// image formats the content check cannot recognize.
func (c *Controller) SelectFile(ctx context.Context, id string, data []byte, hints ...string) (*EditSession, error) {
	if len(data) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, len(data), c.maxUploadBytes)
	}
	uri, err := imagedata.FromUpload(data, hints...)
	if err != nil {
		return nil, err
	}

	info, err := imagedata.Inspect(data)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("Could not inspect uploaded image")
		info = nil
	} else {
		log.Info().
			Str("sessionId", id).
			Str("format", info.Format).
			Int("width", info.Width).
			Int("height", info.Height).
			Bool("needsOutpaint", info.NeedsOutpaint()).
			Msg("Image selected")
	}

	return c.update(ctx, id, FileSelected{DataURI: uri, Info: info})
}

// SetPrompt replaces the session's prompt verbatim.
func (c *Controller) SetPrompt(ctx context.Context, id, text string) (*EditSession, error) {
	return c.update(ctx, id, PromptChanged{Text: text})
}

// Reset clears the whole session or only its result.
func (c *Controller) Reset(ctx context.Context, id string, scope ResetScope) (*EditSession, error) {
	return c.update(ctx, id, Reset{Scope: scope})
}

// SubmitEdit runs the edit for the session's original image and prompt and
// returns the final state. Without an original image the state is returned
// unchanged. A session that is already processing yields ErrEditInProgress.
//
// Edit failures are not returned as errors; they land in the session's
// Error field. The editor call is detached from ctx cancellation so a
// submitted edit runs to completion. If the final state cannot be saved,
// one more attempt records MsgSaveFailed so the session does not stay
// processing.
func (c *Controller) SubmitEdit(ctx context.Context, id string) (*EditSession, error) {
	editID := uuid.New().String()

	started, proceed, err := c.startEdit(ctx, id, editID)
	if err != nil || !proceed {
		return started, err
	}

	log.Info().Str("sessionId", id).Str("editId", editID).Msg("Edit submitted")
	start := time.Now()

	editCtx := context.WithoutCancel(ctx)
	result, editErr := c.editor.EditImage(editCtx, started.Original, started.Prompt)

	var ev Event
	if editErr != nil {
		log.Warn().Err(editErr).Str("sessionId", id).Dur("duration", time.Since(start)).Msg("Edit failed")
		ev = EditFailed{Message: editErr.Error()}
	} else {
		log.Info().Str("sessionId", id).Dur("duration", time.Since(start)).Msg("Edit succeeded")
		ev = EditSucceeded{DataURI: result}
	}

	final, applied, err := c.finishEdit(editCtx, id, editID, ev)
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Str("editId", editID).Msg("Failed to save edit result, marking edit failed")
		failed, _, retryErr := c.finishEdit(editCtx, id, editID, EditFailed{Message: MsgSaveFailed})
		if retryErr != nil {
			log.Error().Err(retryErr).Str("sessionId", id).Str("editId", editID).Msg("Failed to mark edit failed")
			return nil, err
		}
		return failed, nil
	}
	if applied && editErr == nil {
		c.recordHistory(editCtx, started, result)
	}
	return final, nil
}

// History lists recorded edits, newest first. Without a history store the
// list is empty.
func (c *Controller) History(ctx context.Context, limit int) ([]HistoryItem, error) {
	if c.history == nil {
		return []HistoryItem{}, nil
	}
	return c.history.List(ctx, limit)
}

func (c *Controller) startEdit(ctx context.Context, id, editID string) (*EditSession, bool, error) {
	unlock, err := c.locker.Lock(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("lock session %s: %w", id, err)
	}
	defer unlock()

	s, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !s.HasOriginal() {
		return s, false, nil
	}
	if s.IsProcessing {
		age := c.now().Sub(s.EditStartedAt)
		if age <= c.staleAfter {
			return nil, false, ErrEditInProgress
		}
		log.Warn().
			Str("sessionId", id).
			Str("staleEditId", s.EditID).
			Dur("age", age).
			Msg("Replacing abandoned edit")
	}

	next := Apply(*s, EditStarted{EditID: editID, At: c.now()})
	next.UpdatedAt = c.now()
	if err := c.store.Put(ctx, &next); err != nil {
		return nil, false, fmt.Errorf("save session %s: %w", id, err)
	}
	return &next, true, nil
}

// finishEdit applies ev only if the session is still processing editID.
func (c *Controller) finishEdit(ctx context.Context, id, editID string, ev Event) (*EditSession, bool, error) {
	unlock, err := c.locker.Lock(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("lock session %s: %w", id, err)
	}
	defer unlock()

	s, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !s.IsProcessing || s.EditID != editID {
		log.Info().Str("sessionId", id).Str("editId", editID).Msg("Session changed during edit, result discarded")
		return s, false, nil
	}

	next := Apply(*s, ev)
	next.UpdatedAt = c.now()
	if err := c.store.Put(ctx, &next); err != nil {
		return nil, false, fmt.Errorf("save session %s: %w", id, err)
	}
	return &next, true, nil
}

func (c *Controller) update(ctx context.Context, id string, ev Event) (*EditSession, error) {
	unlock, err := c.locker.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	defer unlock()

	s, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := Apply(*s, ev)
	next.UpdatedAt = c.now()
	if err := c.store.Put(ctx, &next); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}

	log.Debug().Str("sessionId", id).Str("event", ev.eventName()).Msg("Session updated")
	return &next, nil
}

func (c *Controller) recordHistory(ctx context.Context, s *EditSession, edited string) {
	if c.history == nil {
		return
	}
	item, err := c.history.Record(ctx, HistoryItem{
		Original:  s.Original,
		Edited:    edited,
		Prompt:    s.Prompt,
		Timestamp: c.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("Failed to record edit history")
		return
	}
	log.Debug().Str("sessionId", s.ID).Str("historyId", item.ID).Msg("Edit recorded in history")
}
