// Package httpc is a single-origin HTTP/1.1 client with explicit deadline,
// TLS and connection-reuse semantics. It exists because the agent needs
// exact control over request framing, chunked decoding and socket lifetime
// on the control-plane path; it is deliberately synchronous and is NOT safe
// for concurrent use — each worker owns its own instance.
package httpc

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vesselhq/vessel-agent/internal/constants"
	"github.com/vesselhq/vessel-agent/internal/logging"
)

// ConnState tracks the connection through one send cycle.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateSending
	StateReading
	StateBroken
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateReading:
		return "reading"
	case StateBroken:
		return "broken"
	}
	return "unknown"
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithVerifyTLS controls peer chain verification. TLS still negotiates when
// verification is off.
func WithVerifyTLS(verify bool) Option {
	return func(c *Client) { c.verifyTLS = verify }
}

// WithLogger attaches a logger for wire-level diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPLogging raises wire logs from debug to info level.
func WithHTTPLogging(enabled bool) Option {
	return func(c *Client) { c.httpLogging = enabled }
}

// Client holds one lazily-dialed connection to a fixed origin. The origin
// (and whether TLS is used) is decided at construction from the URI scheme;
// SetSSL can override it before the first send.
type Client struct {
	host      string
	port      string
	useTLS    bool
	verifyTLS bool
	timeout   time.Duration

	conn  net.Conn
	state ConnState

	status      int
	respHeaders *Headers
	respBody    []byte

	log         *logging.Logger
	httpLogging bool
}

// NewClient parses the origin URI ("https://api.example.com[:port]") and
// returns an idle client. No connection is made until the first send.
func NewClient(uri string, opts ...Option) (*Client, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("origin %q has no host", uri)
	}

	c := &Client{
		host:      u.Hostname(),
		port:      u.Port(),
		useTLS:    u.Scheme == "https",
		verifyTLS: true,
		timeout:   constants.DefaultConnectionTimeout,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.port == "" {
		if c.useTLS {
			c.port = "443"
		} else {
			c.port = "80"
		}
	}
	return c, nil
}

// Host returns the origin hostname.
func (c *Client) Host() string { return c.host }

// IsTLS reports whether sends negotiate TLS.
func (c *Client) IsTLS() bool { return c.useTLS }

// State returns the connection state.
func (c *Client) State() ConnState { return c.state }

// IsConnected reports whether a healthy socket is being reused.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.state == StateReady
}

// SetTimeout sets the wall-clock deadline applied to an entire send:
// connect, handshake, write and read together.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetSSL overrides the scheme-derived TLS choice. Takes effect on the next
// connect; an open connection is dropped.
func (c *Client) SetSSL(enabled bool) {
	if c.useTLS != enabled {
		c.useTLS = enabled
		if c.port == "443" && !enabled {
			c.port = "80"
		} else if c.port == "80" && enabled {
			c.port = "443"
		}
		c.teardown()
	}
}

// Close drops the connection. The client stays usable; the next send
// reconnects.
func (c *Client) Close() {
	c.teardown()
	c.state = StateIdle
}

// Send performs one synchronous HTTP exchange and returns the status code.
// The response body and headers stay readable until the next send. On any
// failure the connection is torn down and the next send reconnects.
func (c *Client) Send(req *Request) (int, error) {
	deadline := time.Now().Add(c.timeout)

	c.status = 0
	c.respHeaders = NewHeaders()
	c.respBody = nil

	if err := c.ensureConnected(deadline); err != nil {
		return 0, err
	}

	wire, err := req.write(c.host)
	if err != nil {
		return 0, err
	}

	c.logf("http send: %s %s (%d body bytes)", req.Method, req.Target, len(req.Body))

	c.state = StateSending
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.fail()
		return 0, fmt.Errorf("failed to arm deadline: %w", err)
	}
	if _, err := c.conn.Write(wire); err != nil {
		c.fail()
		return 0, c.classify(err, "write")
	}

	c.state = StateReading
	br := bufio.NewReader(c.conn)
	status, headers, err := readResponseHead(br)
	if err != nil {
		c.fail()
		return 0, c.classify(err, "read headers")
	}

	body, err := c.readBody(req.Method, status, headers, br)
	if err != nil {
		c.fail()
		return 0, c.classify(err, "read body")
	}

	c.status = status
	c.respHeaders = headers
	c.respBody = body

	c.logf("http recv: %d (%d body bytes)", status, len(body))

	if v, ok := headers.Get("Connection"); ok && strings.EqualFold(strings.TrimSpace(v), "close") {
		c.teardown()
		c.state = StateIdle
	} else {
		c.state = StateReady
	}
	return status, nil
}

// Status returns the status code of the last response.
func (c *Client) Status() int { return c.status }

// ResponseBody returns the decoded body of the last response.
func (c *Client) ResponseBody() []byte { return c.respBody }

// ResponseHeader returns the first value of a response header,
// case-insensitively.
func (c *Client) ResponseHeader(name string) (string, bool) {
	if c.respHeaders == nil {
		return "", false
	}
	return c.respHeaders.Get(name)
}

// ResponseHeaders returns the full ordered header set of the last response.
func (c *Client) ResponseHeaders() *Headers { return c.respHeaders }

// ensureConnected dials and (for TLS origins) handshakes if no healthy
// socket is available. The shared deadline bounds both steps.
func (c *Client) ensureConnected(deadline time.Time) error {
	if c.conn != nil && c.state == StateReady {
		return nil
	}
	c.teardown()

	c.state = StateConnecting
	addr := net.JoinHostPort(c.host, c.port)
	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		c.state = StateBroken
		return c.classify(err, "connect")
	}

	if c.useTLS {
		c.state = StateHandshaking
		tlsConf := &tls.Config{
			ServerName:         c.host,
			InsecureSkipVerify: !c.verifyTLS,
		}
		tlsConn := tls.Client(conn, tlsConf)
		if err := tlsConn.SetDeadline(deadline); err != nil {
			conn.Close()
			c.state = StateBroken
			return fmt.Errorf("failed to arm deadline: %w", err)
		}
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			c.state = StateBroken
			if IsTimeout(err) {
				return &TimeoutError{Op: "tls handshake"}
			}
			return &TLSError{Err: err}
		}
		conn = tlsConn
	}

	c.conn = conn
	c.state = StateReady
	return nil
}

// readBody consumes the response body according to the framing headers.
func (c *Client) readBody(method string, status int, headers *Headers, br *bufio.Reader) ([]byte, error) {
	// No body by definition.
	if method == "HEAD" || status == 204 || status == 304 || (status >= 100 && status < 200) {
		return []byte{}, nil
	}

	if te, ok := headers.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		return readChunkedBody(br)
	}

	if cl, ok := headers.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return nil, &ProtocolError{Reason: "bad Content-Length " + strconv.Quote(cl)}
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, ioOrProtocol(err, "truncated body")
		}
		return body, nil
	}

	// No framing headers: read to EOF. The server must close afterwards.
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	c.teardown()
	return body, nil
}

// readResponseHead parses the status line and header block.
func readResponseHead(br *bufio.Reader) (int, *Headers, error) {
	statusLine, err := readLine(br)
	if err != nil {
		return 0, nil, err
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return 0, nil, &ProtocolError{Reason: "bad status line " + strconv.Quote(statusLine)}
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 599 {
		return 0, nil, &ProtocolError{Reason: "bad status code " + strconv.Quote(parts[1])}
	}

	headers := NewHeaders()
	for {
		line, err := readLine(br)
		if err != nil {
			return 0, nil, err
		}
		if line == "" {
			return status, headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return 0, nil, &ProtocolError{Reason: "bad header line " + strconv.Quote(line)}
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers.Add(name, value)
	}
}

// classify maps socket failures onto the error taxonomy.
func (c *Client) classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return &TimeoutError{Op: op}
	}
	if IsProtocol(err) || IsTLS(err) {
		return err
	}
	return fmt.Errorf("http: %s: %w", op, err)
}

// fail tears the connection down and marks it broken so the next send
// reconnects.
func (c *Client) fail() {
	c.teardown()
	c.state = StateBroken
}

func (c *Client) teardown() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.log == nil {
		return
	}
	if c.httpLogging {
		c.log.Infof(format, args...)
	} else {
		c.log.Debugf(format, args...)
	}
}
