// Package s3util provides the S3 helpers used by the history store: byte
// uploads and pre-signed GET URLs.
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// PutObjectAPI is the subset of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignGetObjectAPI is the subset of *s3.PresignClient used for downloads.
type PresignGetObjectAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// UploadBytes writes data to bucket/key with the given content type.
func UploadBytes(ctx context.Context, client PutObjectAPI, bucket, key string, data []byte, contentType string) error {
	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Uploading object to S3")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient PresignGetObjectAPI, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// ExtensionForMIME returns a file extension (with dot) for common image types.
// An empty type is PNG; other unknown types get a neutral ".img".
func ExtensionForMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "image/avif":
		return ".avif"
	case "image/svg+xml":
		return ".svg"
	case "image/jxl":
		return ".jxl"
	case "", "image/png":
		return ".png"
	default:
		return ".img"
	}
}
