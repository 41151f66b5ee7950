package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTransaction is the request/response pair a TCP stream's reassembled
// client and server buffers decode to. A parsed request alone is enough;
// the response fields stay empty until the server side parses too.
type HTTPTransaction struct {
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	StatusCode  int               `json:"statusCode,omitempty"`
	StatusText  string            `json:"statusText,omitempty"`
	ReqHeaders  map[string]string `json:"reqHeaders,omitempty"`
	RespHeaders map[string]string `json:"respHeaders,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	BodyPreview string            `json:"bodyPreview,omitempty"`
}

const bodyPreviewBytes = 512

// tryParseHTTP decodes an HTTP request out of clientData and, if present,
// a matching response out of serverData. It returns an error rather than
// a transaction when clientData doesn't start with a recognized method.
func tryParseHTTP(clientData, serverData []byte) (*HTTPTransaction, error) {
	if !looksLikeHTTPRequest(clientData) {
		return nil, fmt.Errorf("not HTTP")
	}

	tx := &HTTPTransaction{ReqHeaders: map[string]string{}, RespHeaders: map[string]string{}}

	if req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(clientData))); err == nil {
		tx.Method = req.Method
		tx.URL = req.URL.String()
		flattenHeaders(req.Header, tx.ReqHeaders)
		tx.ContentType = req.Header.Get("Content-Type")
		req.Body.Close()
	}

	if len(serverData) >= 12 {
		readHTTPResponse(serverData, tx)
	}

	if tx.Method == "" && tx.StatusCode == 0 {
		return nil, fmt.Errorf("could not parse HTTP")
	}
	return tx, nil
}

func looksLikeHTTPRequest(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "GET ", "POST", "PUT ", "DELE", "HEAD", "PATC", "OPTI":
		return true
	default:
		return false
	}
}

func readHTTPResponse(serverData []byte, tx *HTTPTransaction) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(serverData)), nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	tx.StatusCode = resp.StatusCode
	tx.StatusText = resp.Status
	flattenHeaders(resp.Header, tx.RespHeaders)
	if tx.ContentType == "" {
		tx.ContentType = resp.Header.Get("Content-Type")
	}

	buf := make([]byte, bodyPreviewBytes)
	if n, _ := io.ReadAtLeast(resp.Body, buf, 1); n > 0 {
		tx.BodyPreview = asciiPreview(buf[:n])
	}
}

func flattenHeaders(h http.Header, dst map[string]string) {
	for k, v := range h {
		dst[k] = strings.Join(v, ", ")
	}
}

// asciiPreview replaces non-printable, non-whitespace bytes with '.' so a
// binary body doesn't corrupt log output or JSON encoding.
func asciiPreview(data []byte) string {
	var sb strings.Builder
	for _, c := range string(data) {
		if c >= 32 && c < 127 || c == '\n' || c == '\r' || c == '\t' {
			sb.WriteRune(c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
