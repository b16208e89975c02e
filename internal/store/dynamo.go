package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/s3util"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants. All history items share one partition so a
// single Query lists them in sort-key (ULID, hence time) order.
const (
	pkHistory     = "HISTORY"
	skItemPrefix  = "ITEM#"
	historyPrefix = "history/"

	// DefaultURLExpiry is the lifetime of pre-signed image URLs.
	DefaultURLExpiry = 1 * time.Hour
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoHistoryStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// historyRecord is the DynamoDB shape of a HistoryItem. Images are stored
// in S3; the record holds their keys.
type historyRecord struct {
	ID          string `dynamodbav:"-"`
	OriginalKey string `dynamodbav:"originalKey"`
	EditedKey   string `dynamodbav:"editedKey"`
	Prompt      string `dynamodbav:"prompt"`
	CreatedAt   int64  `dynamodbav:"createdAt"`
}

// DynamoHistoryStore records edits in a DynamoDB table (PK/SK string keys,
// TTL attribute expiresAt) and their images in an S3 bucket. Listed items
// carry pre-signed GET URLs instead of data URIs.
type DynamoHistoryStore struct {
	db        DynamoAPI
	tableName string
	s3        s3util.PutObjectAPI
	presigner s3util.PresignGetObjectAPI
	bucket    string
	urlExpiry time.Duration
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoHistoryStore creates a DynamoHistoryStore.
func NewDynamoHistoryStore(db DynamoAPI, tableName string, s3Client s3util.PutObjectAPI, presigner s3util.PresignGetObjectAPI, bucket string) *DynamoHistoryStore {
	return &DynamoHistoryStore{
		db:        db,
		tableName: tableName,
		s3:        s3Client,
		presigner: presigner,
		bucket:    bucket,
		urlExpiry: DefaultURLExpiry,
		ttl:       HistoryTTL,
		now:       time.Now,
	}
}

// Record uploads both images to S3 and writes the history record.
func (d *DynamoHistoryStore) Record(ctx context.Context, item session.HistoryItem) (*session.HistoryItem, error) {
	if item.Timestamp.IsZero() {
		item.Timestamp = d.now().UTC()
	}
	if item.ID == "" {
		item.ID = newHistoryID(item.Timestamp)
	}

	originalKey, err := d.uploadDataURI(ctx, item.ID, "original", item.Original)
	if err != nil {
		return nil, fmt.Errorf("record history %s: %w", item.ID, err)
	}
	editedKey, err := d.uploadDataURI(ctx, item.ID, "edited", item.Edited)
	if err != nil {
		return nil, fmt.Errorf("record history %s: %w", item.ID, err)
	}

	rec := historyRecord{
		ID:          item.ID,
		OriginalKey: originalKey,
		EditedKey:   editedKey,
		Prompt:      item.Prompt,
		CreatedAt:   item.Timestamp.Unix(),
	}
	if err := d.putItem(ctx, pkHistory, skItemPrefix+item.ID, rec); err != nil {
		return nil, fmt.Errorf("record history %s: %w", item.ID, err)
	}

	log.Debug().Str("historyId", item.ID).Str("originalKey", originalKey).Str("editedKey", editedKey).Msg("History item persisted to DynamoDB")
	return d.toItem(ctx, rec)
}

// List returns up to limit items, newest first.
func (d *DynamoHistoryStore) List(ctx context.Context, limit int) ([]session.HistoryItem, error) {
	limit = clampLimit(limit)

	result, err := d.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              &d.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pkHistory},
			":skPrefix": &types.AttributeValueMemberS{Value: skItemPrefix},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("Query PK=%s: %w", pkHistory, err)
	}

	items := make([]session.HistoryItem, 0, len(result.Items))
	for _, raw := range result.Items {
		var rec historyRecord
		if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal history item: %w", err)
		}
		if sk, ok := raw["SK"].(*types.AttributeValueMemberS); ok {
			rec.ID = strings.TrimPrefix(sk.Value, skItemPrefix)
		}
		item, err := d.toItem(ctx, rec)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (d *DynamoHistoryStore) uploadDataURI(ctx context.Context, id, name, uri string) (string, error) {
	src := imagedata.ParseDataURI(uri)
	data, err := src.Decode()
	if err != nil {
		return "", fmt.Errorf("%s image: %w", name, err)
	}
	key := historyPrefix + id + "/" + name + s3util.ExtensionForMIME(src.MIMEType)
	if err := s3util.UploadBytes(ctx, d.s3, d.bucket, key, data, src.MIMEType); err != nil {
		return "", err
	}
	return key, nil
}

func (d *DynamoHistoryStore) toItem(ctx context.Context, rec historyRecord) (*session.HistoryItem, error) {
	originalURL, err := s3util.GeneratePresignedURL(ctx, d.presigner, d.bucket, rec.OriginalKey, d.urlExpiry)
	if err != nil {
		return nil, err
	}
	editedURL, err := s3util.GeneratePresignedURL(ctx, d.presigner, d.bucket, rec.EditedKey, d.urlExpiry)
	if err != nil {
		return nil, err
	}
	return &session.HistoryItem{
		ID:        rec.ID,
		Original:  originalURL,
		Edited:    editedURL,
		Prompt:    rec.Prompt,
		Timestamp: time.Unix(rec.CreatedAt, 0).UTC(),
	}, nil
}

// putItem marshals a record and writes it with PK, SK and TTL.
func (d *DynamoHistoryStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Add(d.ttl).Unix(), 10)}

	_, err = d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}
