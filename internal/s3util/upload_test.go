package s3util

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

type fakePresigner struct {
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.example/" + *in.Key}, nil
}

func TestUploadBytes(t *testing.T) {
	f := &fakePutter{}
	if err := UploadBytes(context.Background(), f, "bucket", "history/x/original.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("UploadBytes: %v", err)
	}
	if *f.input.Bucket != "bucket" || *f.input.Key != "history/x/original.png" || *f.input.ContentType != "image/png" {
		t.Errorf("unexpected input: bucket=%s key=%s type=%s", *f.input.Bucket, *f.input.Key, *f.input.ContentType)
	}
	if string(f.body) != "png" {
		t.Errorf("body = %q", f.body)
	}
}

func TestUploadBytesError(t *testing.T) {
	boom := errors.New("access denied")
	err := UploadBytes(context.Background(), &fakePutter{err: boom}, "b", "k", nil, "image/png")
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	f := &fakePresigner{}
	url, err := GeneratePresignedURL(context.Background(), f, "bucket", "a/b.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("GeneratePresignedURL: %v", err)
	}
	if url != "https://bucket.s3.example/a/b.png" {
		t.Errorf("url = %q", url)
	}
	if f.expires != 15*time.Minute {
		t.Errorf("expires = %v", f.expires)
	}

	if _, err := GeneratePresignedURL(context.Background(), &fakePresigner{err: errors.New("no creds")}, "b", "k", time.Minute); err == nil {
		t.Error("expected error")
	}
}

func TestExtensionForMIME(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":        ".jpg",
		"image/png":         ".png",
		"image/webp":        ".webp",
		"image/heic":        ".heic",
		"image/tiff":        ".tiff",
		"image/avif":        ".avif",
		"image/svg+xml":     ".svg",
		"image/x-canon-cr3": ".img",
		"":                  ".png",
	}
	for mime, want := range tests {
		if got := ExtensionForMIME(mime); got != want {
			t.Errorf("ExtensionForMIME(%q) = %q, want %q", mime, got, want)
		}
	}
}
