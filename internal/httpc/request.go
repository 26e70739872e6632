package httpc

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is a single HTTP/1.1 exchange to the client's fixed origin. Target
// is the origin-form request-target (path plus optional query), already
// percent-encoded by the caller.
type Request struct {
	Method  string
	Target  string
	Headers *Headers
	Body    []byte
}

// NewRequest builds a request with an empty header set.
func NewRequest(method, target string) *Request {
	return &Request{
		Method:  method,
		Target:  target,
		Headers: NewHeaders(),
	}
}

// write serializes the request line, headers and body. Host and
// Content-Length are filled in when the caller did not set them.
func (r *Request) write(host string) ([]byte, error) {
	if r.Method == "" {
		return nil, fmt.Errorf("request method is empty")
	}
	target := r.Target
	if target == "" {
		target = "/"
	}
	if !strings.HasPrefix(target, "/") {
		return nil, fmt.Errorf("request target %q is not origin-form", target)
	}

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")

	headers := r.Headers
	if headers == nil {
		headers = NewHeaders()
	}
	if !headers.Has("Host") {
		b.WriteString("Host: ")
		b.WriteString(host)
		b.WriteString("\r\n")
	}
	if !headers.Has("Content-Length") && (len(r.Body) > 0 || r.Method == "POST" || r.Method == "PUT") {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(r.Body)))
		b.WriteString("\r\n")
	}
	headers.Each(func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	})
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)
	return out, nil
}
