// Package media holds sendable media values and the helpers that fetch
// them from remote URLs.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/nfnt/resize"
)

// Media is a payload ready to be uploaded to WhatsApp.
type Media struct {
	MimeType string
	Data     []byte
	FileName string
	// Voice marks audio as a push-to-talk voice note.
	Voice bool
	// Seconds and Waveform describe voice notes.
	Seconds  uint32
	Waveform []byte
}

// Kind is the top-level MIME type ("image", "audio", ...).
func (m *Media) Kind() string {
	mt := strings.ToLower(strings.TrimSpace(m.MimeType))
	if i := strings.Index(mt, "/"); i > 0 {
		return mt[:i]
	}
	return mt
}

// Base64 encodes the raw data.
func (m *Media) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Data)
}

// FetchError reports a failed download of a remote resource.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetch downloads url and returns it as Media.  The MIME type comes from
// the Content-Type header, or is sniffed when the header is missing or
// generic.
func Fetch(ctx context.Context, client *http.Client, url string) (*Media, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	mime := http.DetectContentType(data)
	if ct := resp.Header.Get("Content-Type"); ct != "" && splitMime(ct) != "application/octet-stream" {
		mime = ct
	}
	return &Media{MimeType: mime, Data: data, FileName: fileNameFromURL(url)}, nil
}

// Thumbnail returns a JPEG of at most 72x72 pixels, or nil when the data
// is not a decodable image.
func (m *Media) Thumbnail() []byte {
	if m == nil || len(m.Data) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(m.Data))
	if err != nil {
		return nil
	}
	small := resize.Thumbnail(72, 72, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, nil); err != nil {
		return nil
	}
	return buf.Bytes()
}

func splitMime(m string) string {
	if m == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(m, ";", 2)[0])
}

func fileNameFromURL(u string) string {
	u = strings.SplitN(u, "?", 2)[0]
	name := path.Base(strings.TrimRight(u, "/"))
	if name == "." || name == "/" || strings.Contains(name, ":") {
		return ""
	}
	return name
}
