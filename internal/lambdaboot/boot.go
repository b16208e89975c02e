// Package lambdaboot provides the Lambda cold-start bootstrap: AWS config,
// the Gemini key from SSM Parameter Store, the DynamoDB/S3 history store
// and the startup log.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/mystic-studio/internal/auth"
	"github.com/fpang/mystic-studio/internal/logging"
	"github.com/fpang/mystic-studio/internal/store"
)

// Environment variables read at cold start.
const (
	EnvSSMKeyParam = "SSM_API_KEY_PARAM"

	// DefaultSSMKeyParam is the SecureString holding the Gemini API key.
	DefaultSSMKeyParam = "/mystic-studio/prod/gemini-api-key"
)

// MaxUploadBytes keeps an upload inside the 6 MB Lambda request payload
// once the proxy has base64-encoded the multipart body.
const MaxUploadBytes = 4 << 20

// CapUploadBytes lowers a configured upload limit to MaxUploadBytes.
func CapUploadBytes(n int) int {
	if n <= 0 || n > MaxUploadBytes {
		return MaxUploadBytes
	}
	return n
}

// GetParameterAPI is the subset of *ssm.Client used to fetch the key.
type GetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSClients holds the AWS config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with an SSM client.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// InitHistory creates the DynamoDB/S3 history store for table and bucket.
func InitHistory(cfg aws.Config, table, bucket string) *store.DynamoHistoryStore {
	s3Client := s3.NewFromConfig(cfg)
	return store.NewDynamoHistoryStore(
		dynamodb.NewFromConfig(cfg),
		table,
		s3Client,
		s3.NewPresignClient(s3Client),
		bucket,
	)
}

// LoadGeminiKey returns the Gemini API key. The environment (see
// auth.GetAPIKey) wins; otherwise the key is read from the SSM parameter
// named by SSM_API_KEY_PARAM (default DefaultSSMKeyParam).
func LoadGeminiKey(ctx context.Context, client GetParameterAPI) (string, error) {
	if key, err := auth.GetAPIKey(); err == nil {
		return key, nil
	}

	paramName := os.Getenv(EnvSSMKeyParam)
	if paramName == "" {
		paramName = DefaultSSMKeyParam
	}

	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read API key from SSM parameter %s: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || strings.TrimSpace(*result.Parameter.Value) == "" {
		return "", errors.New("SSM parameter " + paramName + " is empty")
	}

	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return strings.TrimSpace(*result.Parameter.Value), nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
