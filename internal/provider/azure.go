package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/vesselhq/vessel-agent/internal/logging"
)

// azureTarget uploads one object as an Azure block blob: each part is staged
// as an uncommitted block, then the ordered block list is committed.
type azureTarget struct {
	client    *azblob.Client
	container string
	log       *logging.Logger

	key      string
	blockIDs []string
}

func newAzureTarget(endpoint string, creds *azureCredentials, verifyTLS bool, log *logging.Logger) (*azureTarget, error) {
	serviceURL := endpoint
	if !strings.Contains(serviceURL, "?") {
		serviceURL = serviceURL + "?" + strings.TrimPrefix(creds.SASToken, "?")
	}

	client, err := azblob.NewClientWithNoCredential(serviceURL, &azblob.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Transport: newDataPlaneClient(verifyTLS, log),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build azure client: %w", err)
	}

	return &azureTarget{client: client, container: creds.Container, log: log}, nil
}

func (t *azureTarget) Begin(ctx context.Context, objectKey string, size int64, parts int) error {
	t.key = objectKey
	t.blockIDs = nil
	return nil
}

func (t *azureTarget) PutPart(ctx context.Context, k int, data []byte) error {
	// Block IDs must be uniform length and base64; derive from the part index.
	blockID := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%06d", k)))

	bb := t.blockBlob()
	_, err := bb.StageBlock(ctx, blockID, streaming.NopCloser(bytes.NewReader(data)), nil)
	if err != nil {
		return fmt.Errorf("azure stage block %d: %w", k, err)
	}
	t.blockIDs = append(t.blockIDs, blockID)
	return nil
}

func (t *azureTarget) Commit(ctx context.Context) error {
	bb := t.blockBlob()
	_, err := bb.CommitBlockList(ctx, t.blockIDs, &blockblob.CommitBlockListOptions{})
	if err != nil {
		return fmt.Errorf("azure commit block list: %w", err)
	}
	return nil
}

func (t *azureTarget) Abort(ctx context.Context) error {
	// Uncommitted blocks expire server-side after seven days; there is no
	// explicit discard call for them.
	t.blockIDs = nil
	return nil
}

func (t *azureTarget) blockBlob() *blockblob.Client {
	return t.client.ServiceClient().
		NewContainerClient(t.container).
		NewBlockBlobClient(t.key)
}
