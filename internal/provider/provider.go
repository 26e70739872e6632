// Package provider implements the data-plane side of uploads. A Target
// accepts one file's parts and finalizes the remote object; the upload
// manager drives it between init_upload and complete_upload. Providers of
// type "s3" and "azure" are contacted directly with credentials from the
// provider record. The "vessel-native" Target sends parts to the provider's
// own endpoint over plain HTTPS; the upload manager does not use it and
// routes vessel-native uploads through the control plane instead.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
)

// Provider type tags as they appear in provider records.
const (
	TypeS3     = "s3"
	TypeAzure  = "azure"
	TypeNative = "vessel-native"
)

// Target is a provider-side upload session for a single object. Implementations
// are not safe for concurrent use; each worker constructs its own per file.
type Target interface {
	// Begin opens the session for objectKey. Must be called before PutPart.
	// parts is the total part count of the chunk plan.
	Begin(ctx context.Context, objectKey string, size int64, parts int) error
	// PutPart sends part k (1-based). Parts arrive in ascending order.
	PutPart(ctx context.Context, k int, data []byte) error
	// Commit finalizes the remote object after the last part.
	Commit(ctx context.Context) error
	// Abort discards provider-side state after a failure.
	Abort(ctx context.Context) error
}

// NewTarget builds a Target for the given provider record. Control-plane
// proxied uploads never reach this constructor; the upload manager routes
// them through the api client instead.
func NewTarget(rec *store.ProviderRecord, verifyTLS bool, log *logging.Logger) (Target, error) {
	switch rec.Type {
	case TypeS3:
		creds, err := parseS3Credentials(rec.Credentials)
		if err != nil {
			return nil, err
		}
		return newS3Target(rec.Endpoint, creds, verifyTLS, log)
	case TypeAzure:
		creds, err := parseAzureCredentials(rec.Credentials)
		if err != nil {
			return nil, err
		}
		return newAzureTarget(rec.Endpoint, creds, verifyTLS, log)
	case TypeNative:
		creds, err := parseNativeCredentials(rec.Credentials)
		if err != nil {
			return nil, err
		}
		return newNativeTarget(rec.Endpoint, creds, verifyTLS, log)
	}
	return nil, fmt.Errorf("unknown provider type %q", rec.Type)
}

// s3Credentials is the decoded credentials blob for an s3 provider.
type s3Credentials struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

func parseS3Credentials(blob string) (*s3Credentials, error) {
	var c s3Credentials
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("invalid s3 credentials blob: %w", err)
	}
	if c.Bucket == "" || c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 credentials blob missing bucket or keys")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	return &c, nil
}

// azureCredentials is the decoded credentials blob for an azure provider.
// The SAS token is appended to the service URL; the container must exist.
type azureCredentials struct {
	Container string `json:"container"`
	SASToken  string `json:"sas_token"`
}

func parseAzureCredentials(blob string) (*azureCredentials, error) {
	var c azureCredentials
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("invalid azure credentials blob: %w", err)
	}
	if c.Container == "" || c.SASToken == "" {
		return nil, fmt.Errorf("azure credentials blob missing container or sas_token")
	}
	return &c, nil
}

// nativeCredentials is the decoded credentials blob for a vessel-native
// provider: a bearer token for its data endpoint.
type nativeCredentials struct {
	AccessToken string `json:"access_token"`
}

func parseNativeCredentials(blob string) (*nativeCredentials, error) {
	var c nativeCredentials
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("invalid vessel-native credentials blob: %w", err)
	}
	if c.AccessToken == "" {
		return nil, fmt.Errorf("vessel-native credentials blob missing access_token")
	}
	return &c, nil
}
