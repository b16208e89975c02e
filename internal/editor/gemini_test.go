package editor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestFirstInlineImage(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	other := []byte{0xff, 0xd8}

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    []byte
		wantMsg string
	}{
		{
			name:    "nil response",
			resp:    nil,
			wantMsg: MsgNoContent,
		},
		{
			name:    "no candidates",
			resp:    &genai.GenerateContentResponse{},
			wantMsg: MsgNoContent,
		},
		{
			name:    "candidate without content",
			resp:    &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}},
			wantMsg: MsgNoContent,
		},
		{
			name: "text only",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "I cannot edit this"}}},
			}}},
			wantMsg: MsgNoImage,
		},
		{
			name: "text then image",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "Here you go"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: img}},
				}},
			}}},
			want: img,
		},
		{
			name: "first image wins",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: img}},
					{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: other}},
				}},
			}}},
			want: img,
		},
		{
			name: "empty inline data skipped",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "image/png"}},
					{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: other}},
				}},
			}}},
			want: other,
		},
		{
			name: "only first candidate scanned",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "refused"}}}},
				{Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{Data: img}}}}},
			}},
			wantMsg: MsgNoImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := firstInlineImage(tt.resp)
			if tt.wantMsg != "" {
				var ee *EditError
				if !errors.As(err, &ee) {
					t.Fatalf("expected *EditError, got %v", err)
				}
				if ee.Kind != KindGeneration {
					t.Errorf("Kind = %v, want generation", ee.Kind)
				}
				if ee.Message != tt.wantMsg {
					t.Errorf("Message = %q, want %q", ee.Message, tt.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got.Data, tt.want) {
				t.Errorf("Data = %v, want %v", got.Data, tt.want)
			}
		})
	}
}

func TestGeminiGeneratorOverHTTP(t *testing.T) {
	output := []byte("recomposed-png")
	var gotBody map[string]interface{}
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role": "model",
						"parts": []interface{}{
							map[string]interface{}{"text": "Recomposed to 4:5."},
							map[string]interface{}{"inlineData": map[string]interface{}{
								"mimeType": "image/png",
								"data":     base64.StdEncoding.EncodeToString(output),
							}},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewGenAIClient(context.Background(), "test-key", srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewGenAIClient: %v", err)
	}
	gen := NewGeminiGenerator(client, "")

	img, err := gen.GenerateImage(context.Background(), GenerateRequest{
		ImageData:   []byte("source"),
		MIMEType:    "image/jpeg",
		Instruction: "recompose",
		AspectRatio: "3:4",
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}

	if !bytes.Equal(img.Data, output) {
		t.Errorf("Data = %q, want %q", img.Data, output)
	}
	if img.Text != "Recomposed to 4:5." {
		t.Errorf("Text = %q", img.Text)
	}
	if !strings.Contains(gotPath, DefaultModelName+":generateContent") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotBody == nil {
		t.Fatal("request body was not JSON")
	}
	if _, ok := gotBody["contents"]; !ok {
		t.Error("request body missing contents")
	}
}
