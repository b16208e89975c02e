package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/fpang/mystic-studio/internal/store"
	"golang.org/x/image/tiff"
)

type stubEditor struct {
	result string
	err    error
}

func (s stubEditor) EditImage(context.Context, string, string) (string, error) {
	return s.result, s.err
}

type recordingObserver struct {
	mu        sync.Mutex
	endpoints []string
	statuses  []int
}

func (o *recordingObserver) ObserveEdit(string, time.Duration) {}

func (o *recordingObserver) ObserveRequest(_ string, endpoint string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endpoints = append(o.endpoints, endpoint)
	o.statuses = append(o.statuses, status)
}

const editedURI = "data:image/png;base64,UkVTVUxU" // "RESULT"

func newTestServer(t *testing.T, ed session.Editor, opts ...Option) http.Handler {
	t.Helper()
	ctrl := session.NewController(
		store.NewMemorySessionStore(time.Hour),
		ed,
		session.WithHistory(store.NewMemoryHistoryStore(10)),
		session.WithMaxUploadBytes(64<<10),
	)
	return NewRouter(ctrl, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var es sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &es); err != nil {
		t.Fatalf("invalid session JSON %q: %v", rec.Body.String(), err)
	}
	return es
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeSession(t, rec).ID
}

func multipartImage(t *testing.T, field string, data []byte) ([]byte, string) {
	t.Helper()
	return multipartFile(t, field, "photo.png", data)
}

func multipartFile(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, stubEditor{}, WithVersion("1.2.3"))
	rec := do(t, h, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestFullEditFlow(t *testing.T) {
	h := newTestServer(t, stubEditor{result: editedURI})
	id := createSession(t, h)
	base := "/api/sessions/" + id

	body, ct := multipartImage(t, "file", pngFixture(t))
	rec := do(t, h, http.MethodPut, base+"/image", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}
	es := decodeSession(t, rec)
	if !strings.HasPrefix(es.OriginalURL, base+"/original?v=") {
		t.Errorf("OriginalURL = %q", es.OriginalURL)
	}
	if es.Image == nil || es.Image.Width != 10 {
		t.Errorf("image info missing: %+v", es.Image)
	}

	rec = do(t, h, http.MethodGet, es.OriginalURL, nil, "")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pngFixture(t)) {
		t.Fatalf("original: status %d, %d bytes", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Content-Type") != "image/png" || rec.Header().Get("Content-Disposition") != "" {
		t.Errorf("original headers = %v", rec.Header())
	}

	rec = do(t, h, http.MethodPut, base+"/prompt", []byte(`{"prompt":"dreamy"}`), "application/json")
	if rec.Code != http.StatusOK || decodeSession(t, rec).Prompt != "dreamy" {
		t.Fatalf("prompt: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, base+"/edit", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: status %d body %s", rec.Code, rec.Body.String())
	}
	es = decodeSession(t, rec)
	if es.EditedURL == "" || es.IsProcessing || es.Error != "" {
		t.Errorf("unexpected state after edit: %+v", es)
	}

	rec = do(t, h, http.MethodGet, es.EditedURL, nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "RESULT" {
		t.Errorf("edited: status %d body %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, base+"/download", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download: status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="mystic-masterpiece.png"`) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "RESULT" {
		t.Errorf("download body = %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/history?limit=5", nil, "")
	var hist struct {
		Items []session.HistoryItem `json:"items"`
	}
	json.Unmarshal(rec.Body.Bytes(), &hist)
	if len(hist.Items) != 1 || hist.Items[0].Prompt != "dreamy" {
		t.Errorf("history = %+v", hist.Items)
	}

	rec = do(t, h, http.MethodPost, base+"/reset", []byte(`{"scope":"edited"}`), "application/json")
	es = decodeSession(t, rec)
	if es.EditedURL != "" || es.OriginalURL == "" || es.Prompt != "dreamy" {
		t.Errorf("edited reset: %+v", es)
	}

	rec = do(t, h, http.MethodPost, base+"/reset", nil, "")
	es = decodeSession(t, rec)
	if es.OriginalURL != "" || es.Prompt != "" {
		t.Errorf("full reset with empty body: %+v", es)
	}
}

func TestEditWithoutImageIsNoop(t *testing.T) {
	h := newTestServer(t, stubEditor{result: editedURI})
	id := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/edit", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if es := decodeSession(t, rec); es.EditedURL != "" || es.IsProcessing {
		t.Errorf("state should be unchanged: %+v", es)
	}
}

func TestEditFailureIsStoredInSession(t *testing.T) {
	h := newTestServer(t, stubEditor{err: errString("API Key is missing.")})
	id := createSession(t, h)
	body, ct := multipartImage(t, "file", pngFixture(t))
	do(t, h, http.MethodPut, "/api/sessions/"+id+"/image", body, ct)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/edit", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if es := decodeSession(t, rec); es.Error != "API Key is missing." || es.EditedURL != "" {
		t.Errorf("unexpected state %+v", es)
	}
}

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.IntN(256))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUploadNonPNGFormats(t *testing.T) {
	var tiffBuf bytes.Buffer
	if err := tiff.Encode(&tiffBuf, image.NewRGBA(image.Rect(0, 0, 6, 4)), nil); err != nil {
		t.Fatal(err)
	}
	opaque := append([]byte{0x00, 0x11, 0x22, 0x33}, make([]byte, 40)...)

	tests := []struct {
		name     string
		filename string
		data     []byte
		wantType string
	}{
		{"tiff", "scan.tif", tiffBuf.Bytes(), "image/tiff"},
		{"svg", "logo.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), "image/svg+xml"},
		{"heic by file name", "IMG_0042.HEIC", opaque, "image/heic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, stubEditor{})
			id := createSession(t, h)

			body, ct := multipartFile(t, "file", tt.filename, tt.data)
			rec := do(t, h, http.MethodPut, "/api/sessions/"+id+"/image", body, ct)
			if rec.Code != http.StatusOK {
				t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
			}

			rec = do(t, h, http.MethodGet, decodeSession(t, rec).OriginalURL, nil, "")
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if !bytes.Equal(rec.Body.Bytes(), tt.data) {
				t.Errorf("original bytes changed in storage")
			}
			if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "sandbox") {
				t.Errorf("image responses must be sandboxed, CSP = %q", csp)
			}
		})
	}
}

func TestSessionResponsesStaySmall(t *testing.T) {
	ctrl := session.NewController(
		store.NewMemorySessionStore(time.Hour),
		stubEditor{result: editedURI},
		session.WithMaxUploadBytes(4<<20),
	)
	h := NewRouter(ctrl)
	id := createSession(t, h)
	base := "/api/sessions/" + id

	img := noisyPNG(t, 512, 512)
	if len(img) < 512<<10 {
		t.Fatalf("fixture too small: %d bytes", len(img))
	}
	body, ct := multipartImage(t, "file", img)

	responses := map[string]*httptest.ResponseRecorder{
		"upload": do(t, h, http.MethodPut, base+"/image", body, ct),
		"edit":   do(t, h, http.MethodPost, base+"/edit", nil, ""),
		"get":    do(t, h, http.MethodGet, base, nil, ""),
	}
	for name, rec := range responses {
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %.200s", name, rec.Code, rec.Body.String())
		}
		if rec.Body.Len() > 2<<10 {
			t.Errorf("%s: response is %d bytes, images must not be embedded", name, rec.Body.Len())
		}
		if strings.Contains(rec.Body.String(), "base64") {
			t.Errorf("%s: response embeds a data URI", name)
		}
	}

	es := decodeSession(t, responses["get"])
	rec := do(t, h, http.MethodGet, es.OriginalURL, nil, "")
	if !bytes.Equal(rec.Body.Bytes(), img) {
		t.Fatalf("original route returned %d bytes, want %d", rec.Body.Len(), len(img))
	}

	req := httptest.NewRequest(http.MethodGet, es.OriginalURL, nil)
	req.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	cached := httptest.NewRecorder()
	h.ServeHTTP(cached, req)
	if cached.Code != http.StatusNotModified {
		t.Errorf("revalidation status = %d, want 304", cached.Code)
	}
}

func TestImageVersionTracksContent(t *testing.T) {
	a := imagedata.EncodePNG(pngFixture(t))
	b := imagedata.EncodePNG(noisyPNG(t, 16, 16))
	if imageVersion(a) != imageVersion(a) {
		t.Error("version must be stable")
	}
	if imageVersion(a) == imageVersion(b) {
		t.Error("different images must get different versions")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t, stubEditor{})
	id := createSession(t, h)
	base := "/api/sessions/" + id

	textBody, textCT := multipartImage(t, "file", []byte("hello, I am text"))
	wrongField, wrongCT := multipartImage(t, "upload", pngFixture(t))
	bigBody, bigCT := multipartImage(t, "file", append(pngFixture(t), make([]byte, 70<<10)...))

	tests := []struct {
		name        string
		method      string
		path        string
		body        []byte
		contentType string
		want        int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, "", http.StatusNotFound},
		{"unknown session edit", http.MethodPost, "/api/sessions/nope/edit", nil, "", http.StatusNotFound},
		{"not an image", http.MethodPut, base + "/image", textBody, textCT, http.StatusBadRequest},
		{"missing file field", http.MethodPut, base + "/image", wrongField, wrongCT, http.StatusBadRequest},
		{"too large", http.MethodPut, base + "/image", bigBody, bigCT, http.StatusRequestEntityTooLarge},
		{"bad prompt JSON", http.MethodPut, base + "/prompt", []byte("{"), "application/json", http.StatusBadRequest},
		{"bad reset scope", http.MethodPost, base + "/reset", []byte(`{"scope":"some"}`), "application/json", http.StatusBadRequest},
		{"nothing to download", http.MethodGet, base + "/download", nil, "", http.StatusNotFound},
		{"no edited image", http.MethodGet, base + "/edited", nil, "", http.StatusNotFound},
		{"no original image", http.MethodGet, base + "/original", nil, "", http.StatusNotFound},
		{"unknown session original", http.MethodGet, "/api/sessions/nope/original", nil, "", http.StatusNotFound},
		{"bad history limit", http.MethodGet, "/api/history?limit=x", nil, "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, base, nil, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, tt.contentType)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestEditInProgressConflict(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	ed := blockingEditor{entered: entered, release: release}
	h := newTestServer(t, ed)
	id := createSession(t, h)
	body, ct := multipartImage(t, "file", pngFixture(t))
	do(t, h, http.MethodPut, "/api/sessions/"+id+"/image", body, ct)

	done := make(chan int, 1)
	go func() {
		done <- do(t, h, http.MethodPost, "/api/sessions/"+id+"/edit", nil, "").Code
	}()
	<-entered

	rec := do(t, h, http.MethodPost, "/api/sessions/"+id+"/edit", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first edit status = %d", code)
	}
}

type blockingEditor struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingEditor) EditImage(context.Context, string, string) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return editedURI, nil
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, stubEditor{})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("localhost origin should be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("foreign origin must not be allowed by default")
	}

	h = newTestServer(t, stubEditor{}, WithCORSOrigin("https://studio.example"))
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://studio.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://studio.example" {
		t.Error("configured origin should be allowed")
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestServer(t, stubEditor{}, WithObserver(obs))

	do(t, h, http.MethodGet, "/api/sessions/abc", nil, "")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.endpoints) != 1 {
		t.Fatalf("expected one observation, got %v", obs.endpoints)
	}
	if !strings.HasPrefix(obs.endpoints[0], "/api/sessions/{id}") {
		t.Errorf("endpoint = %q, want route pattern", obs.endpoints[0])
	}
	if obs.statuses[0] != http.StatusNotFound {
		t.Errorf("status = %d, want 404", obs.statuses[0])
	}
}

func TestMetricsAndFrontend(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	frontend := fstest.MapFS{
		"index.html": {Data: []byte("<html>studio</html>")},
		"app.js":     {Data: []byte("console.log('hi')")},
	}
	h := newTestServer(t, stubEditor{}, WithMetricsHandler(metricsHandler), WithFrontend(frontend))

	if rec := do(t, h, http.MethodGet, "/metrics", nil, ""); rec.Body.String() != "# metrics" {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/", nil, "")
	if !strings.Contains(rec.Body.String(), "studio") {
		t.Errorf("index not served: %q", rec.Body.String())
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing on page")
	}

	rec = do(t, h, http.MethodGet, "/app.js", nil, "")
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("asset not served: %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/some/client/route", nil, "")
	if !strings.Contains(rec.Body.String(), "studio") {
		t.Errorf("unknown paths should fall back to index.html, got %q", rec.Body.String())
	}
}

func TestGzip(t *testing.T) {
	h := newTestServer(t, stubEditor{}, WithFrontend(fstest.MapFS{
		"index.html": {Data: bytes.Repeat([]byte("<p>mystic</p>"), 200)},
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("expected gzip encoding, got headers %v", rec.Header())
	}
}

func TestOriginVerify(t *testing.T) {
	h := newTestServer(t, stubEditor{}, WithOriginVerify("s3cret"))

	if rec := do(t, h, http.MethodGet, "/api/health", nil, ""); rec.Code != http.StatusForbidden {
		t.Errorf("missing header: status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("x-origin-verify", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid header: status = %d, want 200", rec.Code)
	}
}
