package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vesselhq/vessel-agent/internal/logging"
)

// s3Target uploads one object via the S3 multipart API. Parts below the S3
// minimum (everything in a single-part plan) go through PutObject instead.
type s3Target struct {
	client *s3.Client
	bucket string
	log    *logging.Logger

	key       string
	size      int64
	uploadID  string
	completed []s3types.CompletedPart
}

func newS3Target(endpoint string, creds *s3Credentials, verifyTLS bool, log *logging.Logger) (*s3Target, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)),
		awsconfig.WithHTTPClient(newDataPlaneClient(verifyTLS, log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Target{client: client, bucket: creds.Bucket, log: log}, nil
}

func (t *s3Target) Begin(ctx context.Context, objectKey string, size int64, parts int) error {
	t.key = objectKey
	t.size = size
	t.uploadID = ""
	t.completed = nil

	// Single-part plans skip the multipart session entirely; PutPart uploads
	// the whole object in one call. S3 enforces a 5 MB minimum per part and
	// the chunk size sits far above it, so the split is purely by part count.
	if parts <= 1 {
		return nil
	}

	out, err := t.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3 create multipart upload: %w", err)
	}
	t.uploadID = aws.ToString(out.UploadId)
	return nil
}

func (t *s3Target) PutPart(ctx context.Context, k int, data []byte) error {
	if t.uploadID == "" {
		if k != 1 {
			return fmt.Errorf("s3 single-part upload got part %d", k)
		}
		_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("s3 put object: %w", err)
		}
		return nil
	}

	out, err := t.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(t.bucket),
		Key:        aws.String(t.key),
		UploadId:   aws.String(t.uploadID),
		PartNumber: aws.Int32(int32(k)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 upload part %d: %w", k, err)
	}
	t.completed = append(t.completed, s3types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(int32(k)),
	})
	return nil
}

func (t *s3Target) Commit(ctx context.Context) error {
	if t.uploadID == "" {
		return nil
	}
	_, err := t.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(t.key),
		UploadId: aws.String(t.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: t.completed,
		},
	})
	if err != nil {
		return fmt.Errorf("s3 complete multipart upload: %w", err)
	}
	return nil
}

func (t *s3Target) Abort(ctx context.Context) error {
	if t.uploadID == "" {
		return nil
	}
	_, err := t.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(t.bucket),
		Key:      aws.String(t.key),
		UploadId: aws.String(t.uploadID),
	})
	if err != nil {
		return fmt.Errorf("s3 abort multipart upload: %w", err)
	}
	return nil
}
