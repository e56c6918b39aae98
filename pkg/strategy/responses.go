package strategy

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Bodies of the synthesized offline responses.
const (
	OfflineAPIBody = `{"error":"Offline","message":"No internet connection"}`

	OfflineImageSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="100" viewBox="0 0 100 100">` +
		`<rect fill="#1C1C1E" width="100" height="100"/>` +
		`<text fill="#8E8E93" font-family="system-ui" font-size="12" x="50" y="50" text-anchor="middle">Offline</text>` +
		`</svg>`

	OfflinePageHTML = `<!DOCTYPE html><html><head><meta charset="utf-8">` +
		`<meta name="viewport" content="width=device-width, initial-scale=1">` +
		`<title>Offline</title></head>` +
		`<body><h1>Offline</h1><p>No internet connection.</p></body></html>`

	OfflineText = "Offline"
)

// FallbackHeader marks responses that did not come from the network.
// Its value is the Source of the response.
const FallbackHeader = "X-Offline-Fallback"

// Source names where an answer came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceOfflinePage Source = "offline_page"
	SourceSynthesized Source = "synthesized"
)

func synthesize(req *http.Request, status int, contentType, body string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("Cache-Control", "no-store")
	header.Set(FallbackHeader, string(SourceSynthesized))

	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// OfflineAPIResponse is the JSON answer to an API call without network.
// Its status is 503 Service Unavailable, so clients that check for a 2xx
// status before reading the body treat it as a failed call; the body is
// still the JSON error object.
func OfflineAPIResponse(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "application/json", OfflineAPIBody)
}

// OfflineImageResponse is the placeholder image for an unreachable image.
func OfflineImageResponse(req *http.Request) *http.Response {
	return synthesize(req, http.StatusOK, "image/svg+xml", OfflineImageSVG)
}

// OfflinePageResponse is the last-resort answer to a navigation.
func OfflinePageResponse(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "text/html; charset=utf-8", OfflinePageHTML)
}

// OfflineTextResponse is the answer to any other unreachable asset.
func OfflineTextResponse(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "text/plain; charset=utf-8", OfflineText)
}
