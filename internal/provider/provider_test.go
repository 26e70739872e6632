package provider

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
)

func TestNewTargetUnknownType(t *testing.T) {
	_, err := NewTarget(&store.ProviderRecord{Type: "gopherstorage"}, true, logging.NewDefaultLogger())
	assert.Error(t, err)
}

func TestParseS3Credentials(t *testing.T) {
	blob, _ := json.Marshal(map[string]string{
		"bucket": "backups", "access_key_id": "AKIA", "secret_access_key": "secret",
	})
	creds, err := parseS3Credentials(string(blob))
	require.NoError(t, err)
	assert.Equal(t, "backups", creds.Bucket)
	assert.Equal(t, "us-east-1", creds.Region) // default

	_, err = parseS3Credentials(`{"bucket": "only"}`)
	assert.Error(t, err)
	_, err = parseS3Credentials("not json")
	assert.Error(t, err)
}

func TestParseAzureCredentials(t *testing.T) {
	creds, err := parseAzureCredentials(`{"container": "backups", "sas_token": "sv=abc"}`)
	require.NoError(t, err)
	assert.Equal(t, "backups", creds.Container)

	_, err = parseAzureCredentials(`{"container": "backups"}`)
	assert.Error(t, err)
}

func TestParseNativeCredentials(t *testing.T) {
	creds, err := parseNativeCredentials(`{"access_token": "tok"}`)
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.AccessToken)

	_, err = parseNativeCredentials(`{}`)
	assert.Error(t, err)
}

func TestNativeTargetUploadCycle(t *testing.T) {
	var mu sync.Mutex
	parts := map[string][]byte{}
	completed := false

	mux := nethttp.NewServeMux()
	mux.HandleFunc("PUT /objects/uk-1/parts/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		parts[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(200)
	})
	mux.HandleFunc("POST /objects/uk-1/complete", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mu.Lock()
		completed = true
		mu.Unlock()
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &store.ProviderRecord{
		Type:        TypeNative,
		Endpoint:    srv.URL,
		Credentials: `{"access_token": "tok"}`,
	}
	target, err := NewTarget(rec, true, logging.NewDefaultLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, target.Begin(ctx, "uk-1", 8, 2))
	require.NoError(t, target.PutPart(ctx, 1, []byte("abcd")))
	require.NoError(t, target.PutPart(ctx, 2, []byte("efgh")))
	require.NoError(t, target.Commit(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, completed)
	assert.Equal(t, []byte("abcd"), parts["/objects/uk-1/parts/1"])
	assert.Equal(t, []byte("efgh"), parts["/objects/uk-1/parts/2"])
}

func TestNativeTargetServerFailure(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, "forbidden", 403)
	}))
	defer srv.Close()

	target, err := newNativeTarget(srv.URL, &nativeCredentials{AccessToken: "tok"}, true, logging.NewDefaultLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, target.Begin(ctx, "uk-2", 4, 1))
	err = target.PutPart(ctx, 1, []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNativeTargetRequiresEndpoint(t *testing.T) {
	_, err := newNativeTarget("", &nativeCredentials{AccessToken: "tok"}, true, logging.NewDefaultLogger())
	assert.Error(t, err)
}

func TestS3TargetConstruction(t *testing.T) {
	creds := &s3Credentials{
		Region: "eu-west-1", Bucket: "b", AccessKeyID: "AKIA", SecretAccessKey: "s",
	}
	target, err := newS3Target("https://minio.local:9000", creds, true, logging.NewDefaultLogger())
	require.NoError(t, err)
	require.NotNil(t, target)

	// Single-part plans never open a multipart session.
	require.NoError(t, target.Begin(context.Background(), "key", 100, 1))
	assert.Empty(t, target.uploadID)
}
