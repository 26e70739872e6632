package provider

import (
	"crypto/tls"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"github.com/vesselhq/vessel-agent/internal/logging"
)

// newDataPlaneClient builds the HTTP client used for provider data-plane
// traffic. Part payloads are large and already incompressible, so the
// transport disables compression, pools connections per provider endpoint
// and attempts HTTP/2 for multiplexing.
func newDataPlaneClient(verifyTLS bool, log *logging.Logger) *nethttp.Client {
	tr := &nethttp.Transport{
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	if !verifyTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	_ = http2.ConfigureTransport(tr)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &nethttp.Client{Transport: tr}
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return retryClient.StandardClient()
}

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
// Retry chatter stays at debug so steady-state runs are quiet.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	if l.log != nil {
		l.log.Error().Interface("detail", keysAndValues).Msg(msg)
	}
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	if l.log != nil {
		l.log.Debug().Interface("detail", keysAndValues).Msg(msg)
	}
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.log != nil {
		l.log.Debug().Interface("detail", keysAndValues).Msg(msg)
	}
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.log != nil {
		l.log.Debug().Interface("detail", keysAndValues).Msg(msg)
	}
}
