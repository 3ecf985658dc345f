// Package remoteclient builds and sends the single documented Shazam
// recognition request for an encoded signature. It is deliberately thin:
// no retries, no backoff, no response-schema parsing beyond the track
// title, subtitle and cover-art URL.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/finch-audio/audiosig/internal/config"
	"github.com/finch-audio/audiosig/internal/fingerprint"
	"github.com/finch-audio/audiosig/internal/metrics"
)

const (
	endpointCountry = "US"
	device          = "desktop_mac"
)

// Error reports a failure to build or send the outbound request.
type Error struct {
	Kind string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func remoteRequestFailed(msg string, err error) *Error {
	return &Error{Kind: "RemoteRequestFailed", Msg: msg, Err: err}
}

// RemoteClient sends a signature to the Shazam discovery endpoint.
type RemoteClient struct {
	httpClient *http.Client
	cfg        *config.Config
	metrics    *metrics.Metrics
	logger     *log.Logger

	// requestURLOverrideForTest, when set, replaces the discovery host so
	// tests can point Recognize at an httptest.Server instead of Shazam.
	requestURLOverrideForTest string
}

// NewRemoteClient builds a client that sends requests with httpClient,
// using cfg for language/timezone/user-agent. m may be nil.
func NewRemoteClient(httpClient *http.Client, cfg *config.Config, m *metrics.Metrics) *RemoteClient {
	return &RemoteClient{
		httpClient: httpClient,
		cfg:        cfg,
		metrics:    m,
		logger:     log.NewWithOptions(os.Stderr, log.Options{Prefix: "remoteclient"}),
	}
}

type requestBody struct {
	Timezone  string         `json:"timezone"`
	Signature signaturePart  `json:"signature"`
	Timestamp int64          `json:"timestamp"`
	Context   map[string]any `json:"context"`
	GeoLoc    map[string]any `json:"geolocation"`
}

type signaturePart struct {
	URI      string `json:"uri"`
	SampleMS int    `json:"samplems"`
}

type recognitionResponse struct {
	Track struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
		Images   struct {
			CoverArt string `json:"coverart"`
		} `json:"images"`
	} `json:"track"`
}

// Recognize POSTs sig to the discovery endpoint and returns the track
// metadata extracted from the response. The request is sent exactly
// once; a non-2xx status or a transport failure is returned as a
// RemoteRequestFailed error without retrying.
func (c *RemoteClient) Recognize(ctx context.Context, sig fingerprint.Signature) (*RecognizedTrack, error) {
	uri, err := fingerprint.EncodeURI(sig)
	if err != nil {
		return nil, remoteRequestFailed("encode signature", err)
	}

	body := requestBody{
		Timezone: c.cfg.Timezone,
		Signature: signaturePart{
			URI:      uri,
			SampleMS: int(sig.Seconds() * 1000),
		},
		Timestamp: time.Now().UnixMilli(),
		Context:   map[string]any{},
		GeoLoc:    map[string]any{},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, remoteRequestFailed("marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, remoteRequestFailed("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", c.cfg.Language)
	req.Header.Set("X-Shazam-Platform", "IPHONE")
	req.Header.Set("X-Shazam-AppVersion", "14.1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.ObserveRequest(elapsed, "error")
		return nil, remoteRequestFailed("send request", err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(elapsed, statusClass(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("non-2xx response from recognition endpoint", "status", resp.StatusCode)
		return nil, remoteRequestFailed(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var parsed recognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, remoteRequestFailed("decode response", err)
	}

	return &RecognizedTrack{
		Title:      parsed.Track.Title,
		ArtistName: parsed.Track.Subtitle,
		CoverArt:   parsed.Track.Images.CoverArt,
	}, nil
}

func (c *RemoteClient) requestURL() string {
	host := "https://amp.shazam.com"
	if c.requestURLOverrideForTest != "" {
		host = c.requestURLOverrideForTest
	}
	uuid1 := strings.ToUpper(uuid.New().String())
	uuid2 := strings.ToUpper(uuid.New().String())
	return fmt.Sprintf(
		"%s/discovery/v5/%s/%s/%s/-/tag/%s/%s"+
			"?sync=true&webv3=true&sampling=true&connected=&shazamapiversion=v3"+
			"&sharehub=true&hubv5minorversion=v5.1&hidelb=true&video=v3",
		host, c.cfg.Language, endpointCountry, device, uuid1, uuid2,
	)
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
