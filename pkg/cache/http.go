package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ResponseToEntry converts an HTTP response to a StoredResponse.
// The response body is restored after reading.
func ResponseToEntry(resp *http.Response) (*StoredResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		resp.Body.Close()
		body = b
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &StoredResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		entry.URL = resp.Request.URL.String()
	}
	if entry.Header == nil {
		entry.Header = http.Header{}
	}

	return entry, nil
}

// NewResponse builds a fresh *http.Response from the entry for req.
// Every call returns an independent body reader.
func (s *StoredResponse) NewResponse(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(s.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.Status, http.StatusText(s.Status)),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// Write writes the entry to w as a complete response.
func (s *StoredResponse) Write(w http.ResponseWriter) error {
	h := w.Header()
	for k, vv := range s.Header {
		h[k] = append([]string(nil), vv...)
	}
	h.Set("Content-Length", strconv.Itoa(len(s.Body)))
	w.WriteHeader(s.Status)
	_, err := w.Write(s.Body)
	return err
}
