package api

import (
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel-agent/internal/backupfile"
	"github.com/vesselhq/vessel-agent/internal/config"
	"github.com/vesselhq/vessel-agent/internal/constants"
	"github.com/vesselhq/vessel-agent/internal/hashing"
	"github.com/vesselhq/vessel-agent/internal/httpc"
	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
)

// fakeControlPlane records calls and serves the minimal wire surface.
type fakeControlPlane struct {
	mu sync.Mutex

	installCalls  int
	initCalls     int
	partCalls     []int
	completeCalls int

	installed  bool
	uploadKeys map[string]string // path_hash -> key
	parts      map[string][]byte // key/part -> body

	providers []ProviderPayload
	settings  map[string]string
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{
		uploadKeys: make(map[string]string),
		parts:      make(map[string][]byte),
		settings:   map[string]string{},
	}
}

func (f *fakeControlPlane) handler(t *testing.T) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc(constants.APIPrefix+"/install", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.installCalls++

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["deployment_key"] == "" {
			nethttp.Error(w, "missing deployment key", 400)
			return
		}
		if f.installed {
			json.NewEncoder(w).Encode(map[string]string{
				"client_token": "tok-1", "user_id": "user-1", "message": "already installed",
			})
			return
		}
		f.installed = true
		json.NewEncoder(w).Encode(map[string]string{
			"client_token": "tok-1", "user_id": "user-1",
		})
	})

	mux.HandleFunc(constants.APIPrefix+"/heartbeat", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !f.authed(r) {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(HeartbeatResponse{
			Settings:  f.settings,
			Providers: f.providers,
		})
	})

	mux.HandleFunc(constants.APIPrefix+"/upload/init", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !f.authed(r) {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.initCalls++

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		pathHash := req["path_hash"].(string)
		if key, ok := f.uploadKeys[pathHash]; ok {
			json.NewEncoder(w).Encode(map[string]string{"upload_key": key})
			return
		}
		key := fmt.Sprintf("uk-%d", len(f.uploadKeys)+1)
		f.uploadKeys[pathHash] = key
		json.NewEncoder(w).Encode(map[string]string{"upload_key": key})
	})

	mux.HandleFunc(constants.APIPrefix+"/upload/part", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !f.authed(r) {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		key := r.Header.Get("X-Upload-Key")
		part := r.Header.Get("X-Part-Number")
		sum := r.Header.Get("X-Part-SHA256")
		if key == "" || part == "" || sum == "" {
			nethttp.Error(w, "missing upload headers", 400)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if hashing.SHA256Bytes(body).Hex() != sum {
			nethttp.Error(w, "part checksum mismatch", 422)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		var partNum int
		fmt.Sscanf(part, "%d", &partNum)
		f.partCalls = append(f.partCalls, partNum)
		f.parts[key+"/"+part] = body
		json.NewEncoder(w).Encode(map[string]interface{}{"ack": true, "part": partNum})
	})

	mux.HandleFunc(constants.APIPrefix+"/upload/complete", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !f.authed(r) {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.completeCalls++
		json.NewEncoder(w).Encode(map[string]string{"status": "complete"})
	})

	mux.HandleFunc(constants.APIPrefix+"/stats", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if !f.authed(r) {
			nethttp.Error(w, "unauthorized", 401)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	return mux
}

func (f *fakeControlPlane) authed(r *nethttp.Request) bool {
	return r.Header.Get("Authorization") == "Bearer tok-1"
}

func newTestEnv(t *testing.T) (*fakeControlPlane, *Client, *store.Store) {
	t.Helper()

	fake := newFakeControlPlane()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		APIBaseURL:         srv.URL,
		StorePath:          "unused",
		ChunkSize:          constants.DefaultChunkSize,
		LargeFileThreshold: constants.DefaultLargeFileThreshold,
		ConnectionTimeout:  constants.DefaultConnectionTimeout,
		HeartbeatInterval:  constants.DefaultHeartbeatInterval,
		StatInterval:       constants.DefaultStatInterval,
		VerifyTLS:          true,
		Workers:            1,
	}

	client, err := NewClient(cfg, st, logging.NewDefaultLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return fake, client, st
}

func enroll(t *testing.T, client *Client, st *store.Store) {
	t.Helper()
	require.NoError(t, st.SetSetting(constants.SettingDeploymentKey, "dk-xyz"))
	require.NoError(t, client.InstallClient())
}

func TestInstallClient(t *testing.T) {
	fake, client, st := newTestEnv(t)

	assert.False(t, client.HasClientToken())
	require.NoError(t, st.SetSetting(constants.SettingDeploymentKey, "dk-xyz"))
	assert.True(t, client.HasDeploymentKey())

	require.NoError(t, client.InstallClient())
	assert.True(t, client.HasClientToken())

	token, _, err := st.GetSetting(constants.SettingClientToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	userID, _, err := st.GetSetting(constants.SettingUserID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// Second install against an "already installed" server is a no-op.
	require.NoError(t, client.InstallClient())
	assert.Equal(t, 2, fake.installCalls)
	token, _, err = st.GetSetting(constants.SettingClientToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestInstallClientWithoutDeploymentKey(t *testing.T) {
	_, client, _ := newTestEnv(t)
	err := client.InstallClient()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnrollmentRequired)
}

func TestAuthenticatedCallsRequireToken(t *testing.T) {
	_, client, _ := newTestEnv(t)

	_, err := client.Heartbeat()
	assert.ErrorIs(t, err, ErrEnrollmentRequired)
}

func TestHeartbeatReconcilesProviders(t *testing.T) {
	fake, client, st := newTestEnv(t)
	enroll(t, client, st)

	// Store starts with {A, B}; the payload lists {A, C}.
	require.NoError(t, st.UpsertProvider(&store.ProviderRecord{ID: "A", Type: "s3", Priority: 1, Enabled: true}))
	require.NoError(t, st.UpsertProvider(&store.ProviderRecord{ID: "B", Type: "azure", Priority: 2, Enabled: true}))

	fake.mu.Lock()
	fake.providers = []ProviderPayload{
		{ID: "A", Type: "s3", Priority: 9, Endpoint: "https://s3.example", Enabled: true},
		{ID: "C", Type: "vessel-native", Priority: 1, Enabled: true},
	}
	fake.settings = map[string]string{"chunk_size": "1048576"}
	fake.mu.Unlock()

	_, err := client.Heartbeat()
	require.NoError(t, err)

	recs, err := st.ProvidersByPriority()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "C", recs[0].ID)
	assert.Equal(t, "A", recs[1].ID)
	assert.Equal(t, 9, recs[1].Priority)
	assert.Equal(t, "https://s3.example", recs[1].Endpoint)

	// Settings from the payload were persisted.
	v, ok, err := st.GetSetting("chunk_size")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1048576", v)
}

func TestUploadFlow(t *testing.T) {
	fake, client, st := newTestEnv(t)
	enroll(t, client, st)

	content := make([]byte, 1024) // S1: 1024 zero bytes
	path := filepath.Join(t.TempDir(), "zeros.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	f, err := backupfile.New(path, st, constants.DefaultChunkSize)
	require.NoError(t, err)
	require.Equal(t, 1, f.TotalParts())

	sum, err := f.ContentSHA256()
	require.NoError(t, err)
	assert.Equal(t, "5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef", sum.Hex())

	key, err := client.InitUpload(f)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	// Idempotent by path-hash while the upload is open.
	key2, err := client.InitUpload(f)
	require.NoError(t, err)
	assert.Equal(t, key, key2)

	require.NoError(t, client.UploadFilePart(f, key, 1))
	require.NoError(t, client.CompleteUpload(key))

	assert.Equal(t, 2, fake.initCalls)
	assert.Equal(t, []int{1}, fake.partCalls)
	assert.Equal(t, 1, fake.completeCalls)
	assert.Equal(t, content, fake.parts[key+"/1"])
}

func TestUploadMultipleParts(t *testing.T) {
	fake, client, st := newTestEnv(t)
	enroll(t, client, st)

	content := []byte("abcdefghij") // chunk size 4 -> parts of 4, 4, 2
	path := filepath.Join(t.TempDir(), "multi.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	f, err := backupfile.New(path, st, 4)
	require.NoError(t, err)
	require.Equal(t, 3, f.TotalParts())

	key, err := client.InitUpload(f)
	require.NoError(t, err)
	for k := 1; k <= f.TotalParts(); k++ {
		require.NoError(t, client.UploadFilePart(f, key, k))
	}
	require.NoError(t, client.CompleteUpload(key))

	assert.Equal(t, []int{1, 2, 3}, fake.partCalls)
	assert.Equal(t, []byte("abcd"), fake.parts[key+"/1"])
	assert.Equal(t, []byte("efgh"), fake.parts[key+"/2"])
	assert.Equal(t, []byte("ij"), fake.parts[key+"/3"])
}

func TestGetStorageProvider(t *testing.T) {
	_, client, st := newTestEnv(t)

	_, err := client.GetStorageProvider()
	assert.ErrorIs(t, err, ErrNoProviders)

	require.NoError(t, st.UpsertProvider(&store.ProviderRecord{ID: "p1", Priority: 10, Enabled: true}))
	require.NoError(t, st.UpsertProvider(&store.ProviderRecord{ID: "p2", Priority: 5, Enabled: true}))
	require.NoError(t, st.UpsertProvider(&store.ProviderRecord{ID: "p3", Priority: 1, Enabled: false}))

	prov, err := client.GetStorageProvider()
	require.NoError(t, err)
	assert.Equal(t, "p2", prov.ID)
}

func TestIsRetriable(t *testing.T) {
	assert.False(t, IsRetriable(nil))
	assert.True(t, IsRetriable(&ServerError{Status: 500}))
	assert.True(t, IsRetriable(&ServerError{Status: 503}))
	assert.False(t, IsRetriable(&ClientError{Status: 404}))
	assert.False(t, IsRetriable(&ClientError{Status: 422}))
	assert.True(t, IsRetriable(&ClientError{Status: 408}))
	assert.True(t, IsRetriable(&ClientError{Status: 429}))
	assert.True(t, IsRetriable(&httpc.TimeoutError{Op: "read"}))
	assert.False(t, IsRetriable(&httpc.ProtocolError{Reason: "bad framing"}))
}
