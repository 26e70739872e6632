package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/vesselhq/vessel-agent/internal/backupfile"
	"github.com/vesselhq/vessel-agent/internal/config"
	"github.com/vesselhq/vessel-agent/internal/constants"
	"github.com/vesselhq/vessel-agent/internal/hashing"
	"github.com/vesselhq/vessel-agent/internal/httpc"
	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
	"github.com/vesselhq/vessel-agent/internal/version"
)

// Client binds the control-plane API over a single-origin HTTP client. It
// injects Bearer authentication for every route except enrollment and targets
// the versioned path prefix. Like the underlying httpc.Client it is NOT safe
// for concurrent use; each worker builds its own.
type Client struct {
	http  *httpc.Client
	store *store.Store
	log   *logging.Logger

	clientToken string
	userID      string
	startedAt   time.Time
}

// NewClient builds a control-plane client from configuration. The client
// token, when present in the store, is loaded immediately so the first
// authenticated call carries it.
func NewClient(cfg *config.Config, st *store.Store, log *logging.Logger) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API base URL is empty, check configuration (api_base_url)")
	}

	hc, err := httpc.NewClient(cfg.APIBaseURL,
		httpc.WithVerifyTLS(cfg.VerifyTLS),
		httpc.WithLogger(log),
		httpc.WithHTTPLogging(cfg.HTTPLogging),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}
	hc.SetTimeout(cfg.ConnectionTimeout)

	c := &Client{
		http:      hc,
		store:     st,
		log:       log,
		startedAt: time.Now(),
	}
	if err := c.RefreshClientToken(); err != nil {
		return nil, err
	}
	return c, nil
}

// RefreshClientToken re-reads the token and user id from the store. Called
// after enrollment and whenever the server rotates the token.
func (c *Client) RefreshClientToken() error {
	token, _, err := c.store.GetSetting(constants.SettingClientToken)
	if err != nil {
		return err
	}
	userID, _, err := c.store.GetSetting(constants.SettingUserID)
	if err != nil {
		return err
	}
	c.clientToken = token
	c.userID = userID
	return nil
}

// HasClientToken reports whether an enrollment token is available.
func (c *Client) HasClientToken() bool { return c.clientToken != "" }

// HasDeploymentKey reports whether the one-shot enrollment key is set.
func (c *Client) HasDeploymentKey() bool {
	key, ok, err := c.store.GetSetting(constants.SettingDeploymentKey)
	return err == nil && ok && key != ""
}

// InstallClient enrolls this agent using the deployment key and persists the
// issued client token and user id. Idempotent: a server that reports the
// agent as already installed leaves existing credentials in place.
func (c *Client) InstallClient() error {
	key, ok, err := c.store.GetSetting(constants.SettingDeploymentKey)
	if err != nil {
		return err
	}
	if !ok || key == "" {
		return fmt.Errorf("deployment key not set: %w", ErrEnrollmentRequired)
	}

	hostname, _ := os.Hostname()
	req := installRequest{
		DeploymentKey: key,
		Hostname:      hostname,
		OS:            runtime.GOOS,
	}

	var resp installResponse
	status, err := c.post("/install", req, &resp, false)
	if err != nil {
		var ce *ClientError
		// 409 means this deployment key already enrolled; keep what we have.
		if errors.As(err, &ce) && ce.Status == 409 && c.HasClientToken() {
			c.log.Info().Msg("client already installed")
			return nil
		}
		return err
	}

	if strings.Contains(strings.ToLower(resp.Message), "already installed") && resp.ClientToken == "" {
		if c.HasClientToken() {
			c.log.Info().Msg("client already installed")
			return nil
		}
		return fmt.Errorf("server reports already installed but no local client token exists")
	}
	if resp.ClientToken == "" || resp.UserID == "" {
		return &ServerError{Status: status, Body: "install response missing client_token or user_id"}
	}

	if err := c.store.SetSetting(constants.SettingClientToken, resp.ClientToken); err != nil {
		return err
	}
	if err := c.store.SetSetting(constants.SettingUserID, resp.UserID); err != nil {
		return err
	}
	c.log.Info().Str("user_id", resp.UserID).Msg("client enrolled")
	return c.RefreshClientToken()
}

// Heartbeat posts local health status. The response carries settings and the
// authoritative provider list; both are reconciled into the store. A parse
// failure aborts reconciliation before any write.
func (c *Client) Heartbeat() (*HeartbeatResponse, error) {
	req := HeartbeatStatus{
		AgentVersion: agentVersion(),
		Uptime:       int64(time.Since(c.startedAt).Seconds()),
	}

	var resp HeartbeatResponse
	if _, err := c.post("/heartbeat", req, &resp, true); err != nil {
		return nil, err
	}

	recs := make([]store.ProviderRecord, 0, len(resp.Providers))
	for _, p := range resp.Providers {
		if p.ID == "" {
			return nil, &ServerError{Status: 200, Body: "heartbeat provider entry missing id"}
		}
		recs = append(recs, store.ProviderRecord{
			ID:          p.ID,
			Type:        p.Type,
			Priority:    p.Priority,
			Endpoint:    p.Endpoint,
			Credentials: p.Credentials,
			Enabled:     p.Enabled,
		})
	}
	if err := c.store.ReconcileProviders(recs); err != nil {
		return nil, err
	}

	for name, value := range resp.Settings {
		if err := c.store.SetSetting(name, value); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// InitUpload registers a new file upload and returns the server upload key.
// Idempotent by path-hash while the upload is open.
func (c *Client) InitUpload(f *backupfile.File) (string, error) {
	sha256, err := f.ContentSHA256()
	if err != nil {
		return "", err
	}

	req := initUploadRequest{
		PathHash:  f.PathHash().Hex(),
		Path:      f.Path,
		Size:      f.Size,
		SHA256:    sha256.Hex(),
		Parts:     f.TotalParts(),
		ChunkSize: f.ChunkSize(),
	}

	var resp initUploadResponse
	if _, err := c.post("/upload/init", req, &resp, true); err != nil {
		return "", err
	}
	if resp.UploadKey == "" {
		return "", &ServerError{Status: 200, Body: "init response missing upload_key"}
	}
	return resp.UploadKey, nil
}

// UploadFilePart transmits one part's bytes. The upload key, part index,
// byte range and both part and whole-file SHA-256 ride in headers; the body
// is the raw part content. Success is a 2xx acknowledging the part index.
func (c *Client) UploadFilePart(f *backupfile.File, uploadKey string, partNumber int) error {
	if !c.HasClientToken() {
		return ErrEnrollmentRequired
	}

	data, err := f.Part(partNumber)
	if err != nil {
		return err
	}
	offset, length := f.PartRange(partNumber)
	fileSum, err := f.ContentSHA256()
	if err != nil {
		return err
	}

	req := httpc.NewRequest("POST", constants.APIPrefix+"/upload/part")
	req.Headers.Set("Authorization", "Bearer "+c.clientToken)
	req.Headers.Set("Content-Type", "application/octet-stream")
	req.Headers.Set("X-Upload-Key", uploadKey)
	req.Headers.Set("X-Part-Number", strconv.Itoa(partNumber))
	req.Headers.Set("X-Part-Offset", strconv.FormatInt(offset, 10))
	req.Headers.Set("X-Part-Length", strconv.FormatInt(length, 10))
	req.Headers.Set("X-Part-SHA256", hashing.SHA256Bytes(data).Hex())
	req.Headers.Set("X-Content-SHA256", fileSum.Hex())
	req.Body = data

	status, err := c.http.Send(req)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return statusError(status, string(c.http.ResponseBody()))
	}

	var ack partAck
	if err := json.Unmarshal(c.http.ResponseBody(), &ack); err != nil {
		return &ServerError{Status: status, Body: "unparseable part ack"}
	}
	if ack.Part != partNumber {
		return &ServerError{Status: status, Body: fmt.Sprintf("server acknowledged part %d, sent %d", ack.Part, partNumber)}
	}
	return nil
}

// CompleteUpload finalizes a multipart upload. Only a server response
// confirming reassembly counts as success.
func (c *Client) CompleteUpload(uploadKey string) error {
	var resp completeResponse
	if _, err := c.post("/upload/complete", completeRequest{UploadKey: uploadKey}, &resp, true); err != nil {
		return err
	}
	switch strings.ToLower(resp.Status) {
	case "complete", "completed", "ok":
		return nil
	}
	return &ServerError{Status: 200, Body: "upload not reassembled: status " + strconv.Quote(resp.Status)}
}

// PostStats pushes the aggregated status payload.
func (c *Client) PostStats(stats StatPayload) error {
	_, err := c.post("/stats", stats, nil, true)
	return err
}

// GetStorageProvider returns the highest-priority enabled provider from the
// store.
func (c *Client) GetStorageProvider() (*store.ProviderRecord, error) {
	recs, err := c.store.ProvidersByPriority()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Enabled {
			return &recs[i], nil
		}
	}
	return nil, ErrNoProviders
}

// post sends a JSON request to a prefixed route, decodes a JSON 2xx response
// into out (when non-nil) and maps other statuses onto the error taxonomy.
func (c *Client) post(route string, body interface{}, out interface{}, authed bool) (int, error) {
	if authed && !c.HasClientToken() {
		return 0, ErrEnrollmentRequired
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := httpc.NewRequest("POST", constants.APIPrefix+route)
	req.Headers.Set("Content-Type", "application/json")
	req.Headers.Set("Accept", "application/json")
	if authed {
		req.Headers.Set("Authorization", "Bearer "+c.clientToken)
	}
	req.Body = payload

	status, err := c.http.Send(req)
	if err != nil {
		return 0, err
	}
	if status < 200 || status > 299 {
		return status, statusError(status, string(c.http.ResponseBody()))
	}
	if out != nil {
		if err := json.Unmarshal(c.http.ResponseBody(), out); err != nil {
			return status, &ServerError{Status: status, Body: fmt.Sprintf("unparseable response for %s: %v", route, err)}
		}
	}
	return status, nil
}

// Close drops the underlying connection.
func (c *Client) Close() {
	c.http.Close()
}

func agentVersion() string {
	return version.Version
}
