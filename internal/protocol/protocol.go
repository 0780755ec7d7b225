// Package protocol frames requests and responses of the aggregation wire
// protocol: an HTTP/1.1-shaped request line, headers including Lamport-Clock,
// and a Content-Length delimited JSON body.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// HeaderLamportClock carries the sender's Lamport timestamp.
const HeaderLamportClock = "Lamport-Clock"

// StationQueryParam selects a single station on GET.
const StationQueryParam = "id"

const (
	MethodGet = "GET"
	MethodPut = "PUT"
)

var (
	// ErrNoRequest means the peer closed the connection before sending anything.
	ErrNoRequest = errors.New("connection closed before request")
	// ErrMalformedRequest means the bytes received do not form a request.
	ErrMalformedRequest = errors.New("malformed request")
)

// Request is one parsed inbound request.
type Request struct {
	Method    string
	Path      string
	StationID string // from the "id" query parameter, GET only

	Lamport    int64
	HasLamport bool

	Body      []byte
	KeepAlive bool
}

// ReadRequest reads exactly one request from r. Bodies larger than maxBody
// bytes are rejected as malformed.
func ReadRequest(r *bufio.Reader, maxBody int) (*Request, error) {
	if _, err := r.Peek(1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRequest, err)
	}

	var fr fasthttp.Request
	if err := fr.ReadLimitBody(r, maxBody); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	// Without Content-Length or chunked framing fasthttp reads an empty body
	// and leaves the payload unread in r.
	if fr.Header.IsPut() && len(fr.Body()) == 0 && r.Buffered() > 0 &&
		len(fr.Header.Peek(fasthttp.HeaderContentLength)) == 0 {
		return nil, fmt.Errorf("%w: body without Content-Length", ErrMalformedRequest)
	}

	req := &Request{
		Method:    strings.ToUpper(string(fr.Header.Method())),
		Path:      string(fr.URI().Path()),
		StationID: strings.TrimSpace(string(fr.URI().QueryArgs().Peek(StationQueryParam))),
		Body:      append([]byte(nil), fr.Body()...),
		KeepAlive: strings.EqualFold(string(fr.Header.Peek(fasthttp.HeaderConnection)), "keep-alive"),
	}

	if raw := bytes.TrimSpace(fr.Header.Peek(HeaderLamportClock)); len(raw) > 0 {
		ts, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil || ts < 0 {
			return nil, fmt.Errorf("%w: invalid %s header %q", ErrMalformedRequest, HeaderLamportClock, raw)
		}
		req.Lamport = ts
		req.HasLamport = true
	}

	return req, nil
}

// Response is one outbound response.
type Response struct {
	Status      int
	Lamport     int64
	Body        []byte
	ContentType string
	Close       bool
}

// Text builds a plain-text response.
func Text(status int, lamport int64, msg string) Response {
	return Response{
		Status:      status,
		Lamport:     lamport,
		Body:        []byte(msg),
		ContentType: "text/plain; charset=utf-8",
	}
}

// JSON builds a response carrying an already encoded JSON document.
func JSON(status int, lamport int64, body []byte) Response {
	return Response{
		Status:      status,
		Lamport:     lamport,
		Body:        body,
		ContentType: "application/json",
	}
}

// WriteResponse writes resp as "HTTP/1.1 <code> <reason>", headers, a blank
// line and the optional body.
func WriteResponse(w io.Writer, resp Response) error {
	var fr fasthttp.Response
	fr.SetStatusCode(resp.Status)
	fr.Header.Set(HeaderLamportClock, strconv.FormatInt(resp.Lamport, 10))
	if resp.ContentType != "" {
		fr.Header.SetContentType(resp.ContentType)
	}
	if len(resp.Body) > 0 {
		fr.SetBody(resp.Body)
	}
	if resp.Close {
		fr.SetConnectionClose()
	}

	bw := bufio.NewWriter(w)
	if err := fr.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
