package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/vesselhq/vessel-agent/internal/logging"
)

// nativeTarget sends parts to a vessel-native provider's own data endpoint:
// PUT {endpoint}/objects/{key}/parts/{k}, then POST .../complete. Transient
// failures are retried by the underlying retryable transport.
type nativeTarget struct {
	httpClient *nethttp.Client
	endpoint   string
	token      string
	log        *logging.Logger

	key string
}

func newNativeTarget(endpoint string, creds *nativeCredentials, verifyTLS bool, log *logging.Logger) (*nativeTarget, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("vessel-native provider has no endpoint")
	}
	return &nativeTarget{
		httpClient: newDataPlaneClient(verifyTLS, log),
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		token:      creds.AccessToken,
		log:        log,
	}, nil
}

func (t *nativeTarget) Begin(ctx context.Context, objectKey string, size int64, parts int) error {
	t.key = objectKey
	return nil
}

func (t *nativeTarget) PutPart(ctx context.Context, k int, data []byte) error {
	url := fmt.Sprintf("%s/objects/%s/parts/%d", t.endpoint, t.key, k)
	req, err := nethttp.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create part request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))

	return t.do(req, fmt.Sprintf("put part %d", k))
}

func (t *nativeTarget) Commit(ctx context.Context) error {
	url := fmt.Sprintf("%s/objects/%s/complete", t.endpoint, t.key)
	req, err := nethttp.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create complete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	return t.do(req, "complete")
}

func (t *nativeTarget) Abort(ctx context.Context) error {
	url := fmt.Sprintf("%s/objects/%s", t.endpoint, t.key)
	req, err := nethttp.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create abort request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	return t.do(req, "abort")
}

func (t *nativeTarget) do(req *nethttp.Request, op string) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vessel-native %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vessel-native %s: status %d: %s", op, resp.StatusCode, string(body))
	}
	return nil
}
