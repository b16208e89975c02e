package editor

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/mystic-studio/internal/assets"
)

// fakeGenerator records requests and returns a canned result.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []GenerateRequest
	image    *GeneratedImage
	err      error
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, req GenerateRequest) (*GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

// fakeObserver counts edit outcomes.
type fakeObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *fakeObserver) ObserveEdit(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *fakeObserver) ObserveRequest(string, string, int, time.Duration) {}

const testOriginal = "data:image/jpeg;base64,/9j/4AAQSkZJRg=="

func newTestClient(t *testing.T, apiKey string, gen Generator, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithGenerator(gen)}, opts...)
	c, err := NewClient(context.Background(), Config{APIKey: apiKey}, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestEditImageSuccess(t *testing.T) {
	gen := &fakeGenerator{image: &GeneratedImage{Data: []byte("edited-bytes"), MIMEType: "image/png"}}
	obs := &fakeObserver{}
	c := newTestClient(t, "test-key", gen, WithObserver(obs))

	got, err := c.EditImage(context.Background(), testOriginal, "  make it dreamy  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("edited-bytes"))
	if got != want {
		t.Errorf("EditImage = %q, want %q", got, want)
	}

	if len(gen.requests) != 1 {
		t.Fatalf("expected exactly one generator call, got %d", len(gen.requests))
	}
	req := gen.requests[0]
	if req.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", req.MIMEType)
	}
	if req.AspectRatio != DefaultAspectRatio {
		t.Errorf("AspectRatio = %q, want %q", req.AspectRatio, DefaultAspectRatio)
	}
	if !strings.HasSuffix(req.Instruction, "USER MAGIC REQUEST: make it dreamy") {
		t.Errorf("instruction should end with the trimmed prompt, got %q", req.Instruction)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "success" {
		t.Errorf("expected one success observation, got %v", obs.outcomes)
	}
}

func TestEditImageWrapsAnyImageAsPNG(t *testing.T) {
	gen := &fakeGenerator{image: &GeneratedImage{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}}
	c := newTestClient(t, "test-key", gen)

	got, err := c.EditImage(context.Background(), testOriginal, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("result must be a PNG data URI, got %q", got)
	}
}

func TestEditImageMissingAPIKey(t *testing.T) {
	gen := &fakeGenerator{image: &GeneratedImage{Data: []byte("x")}}
	obs := &fakeObserver{}
	c := newTestClient(t, "", gen, WithObserver(obs))

	_, err := c.EditImage(context.Background(), testOriginal, "anything")

	var ee *EditError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EditError, got %T", err)
	}
	if ee.Kind != KindConfig {
		t.Errorf("Kind = %v, want config", ee.Kind)
	}
	if err.Error() != MsgMissingAPIKey {
		t.Errorf("message = %q, want %q", err.Error(), MsgMissingAPIKey)
	}
	if len(gen.requests) != 0 {
		t.Error("generator must not be called without an API key")
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "config_error" {
		t.Errorf("expected one config_error observation, got %v", obs.outcomes)
	}
}

func TestEditImageNoGeneratorWithKey(t *testing.T) {
	c := &Client{cfg: Config{APIKey: "k"}, observer: &fakeObserver{}}
	_, err := c.EditImage(context.Background(), testOriginal, "")
	if err == nil || err.Error() != MsgMissingAPIKey {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEditImageServiceError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rpc error: 503 model overloaded")}
	c := newTestClient(t, "test-key", gen)

	_, err := c.EditImage(context.Background(), testOriginal, "")

	var ee *EditError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EditError, got %T", err)
	}
	if ee.Kind != KindService {
		t.Errorf("Kind = %v, want service", ee.Kind)
	}
	if err.Error() != "rpc error: 503 model overloaded" {
		t.Errorf("underlying message should be carried, got %q", err.Error())
	}
	if !errors.Is(err, gen.err) {
		t.Error("EditError should unwrap to the underlying error")
	}
}

func TestEditImageEmptyServiceErrorMessage(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("")}
	c := newTestClient(t, "test-key", gen)

	_, err := c.EditImage(context.Background(), testOriginal, "")
	if err == nil || err.Error() != MsgGenericFailure {
		t.Errorf("expected generic failure message, got %v", err)
	}
}

func TestEditImageGenerationFailurePassesThrough(t *testing.T) {
	gen := &fakeGenerator{err: &EditError{Kind: KindGeneration, Message: MsgNoImage}}
	c := newTestClient(t, "test-key", gen)

	_, err := c.EditImage(context.Background(), testOriginal, "")
	if err == nil || err.Error() != MsgNoImage {
		t.Errorf("expected %q, got %v", MsgNoImage, err)
	}
}

func TestEditImageUnreadableSource(t *testing.T) {
	gen := &fakeGenerator{image: &GeneratedImage{Data: []byte("x")}}
	c := newTestClient(t, "test-key", gen)

	_, err := c.EditImage(context.Background(), "data:image/png;base64,***", "")

	var ee *EditError
	if !errors.As(err, &ee) || ee.Kind != KindInput {
		t.Fatalf("expected input EditError, got %v", err)
	}
	if len(gen.requests) != 0 {
		t.Error("generator must not be called for an unreadable source")
	}
}

func TestEditImageDefaultsMIMEType(t *testing.T) {
	gen := &fakeGenerator{image: &GeneratedImage{Data: []byte("x")}}
	c := newTestClient(t, "test-key", gen)

	bare := base64.StdEncoding.EncodeToString([]byte("raw"))
	if _, err := c.EditImage(context.Background(), bare, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.requests[0].MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png default", gen.requests[0].MIMEType)
	}
}

func TestBuildInstructionBlankPromptFallsBack(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t  \n"} {
		got := BuildInstruction(prompt)
		if !strings.HasSuffix(got, "USER MAGIC REQUEST: "+assets.DefaultUserRequest) {
			t.Errorf("BuildInstruction(%q) should use the default request, got %q", prompt, got)
		}
		if !strings.HasPrefix(got, strings.TrimSpace(assets.CompositionProtocol)) {
			t.Errorf("BuildInstruction(%q) should start with the protocol", prompt)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != DefaultModelName {
		t.Errorf("Model = %q, want %q", c.Model(), DefaultModelName)
	}
	if c.cfg.AspectRatio != DefaultAspectRatio {
		t.Errorf("AspectRatio = %q, want %q", c.cfg.AspectRatio, DefaultAspectRatio)
	}
	if c.gen != nil {
		t.Error("no generator should be created without an API key")
	}
}
