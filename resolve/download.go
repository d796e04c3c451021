package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	DefaultChunkSize    = 1 << 20
	DefaultTimeout      = 30 * time.Minute
	DefaultChunkTimeout = 5 * time.Minute
)

// Response is a fully read HTTP response body.
type Response struct {
	Body        []byte
	ContentType string
}

// Downloader streams response bodies in fixed-size chunks, bounding both
// the whole transfer and the wait for each chunk.
type Downloader struct {
	client       *http.Client
	timeout      time.Duration
	chunkTimeout time.Duration
	chunkSize    int
}

// NewDownloader creates a Downloader. Zero durations take the defaults.
func NewDownloader(client *http.Client, timeout, chunkTimeout time.Duration) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if chunkTimeout <= 0 {
		chunkTimeout = DefaultChunkTimeout
	}
	return &Downloader{
		client:       client,
		timeout:      timeout,
		chunkTimeout: chunkTimeout,
		chunkSize:    DefaultChunkSize,
	}
}

// Get fetches url with the given headers and returns the whole body.
func (d *Downloader) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := d.readChunks(resp.Body, cancel)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return &Response{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// readChunks drains r. A chunk that takes longer than chunkTimeout cancels
// the request, which unblocks the pending read.
func (d *Downloader) readChunks(r io.Reader, cancel context.CancelFunc) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, d.chunkSize)
	var stalled atomic.Bool

	for {
		timer := time.AfterFunc(d.chunkTimeout, func() {
			stalled.Store(true)
			cancel()
		})
		n, err := io.ReadFull(r, chunk)
		timer.Stop()

		buf.Write(chunk[:n])
		switch {
		case err == nil:
			continue
		case stalled.Load():
			return nil, ErrChunkTimeout
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return buf.Bytes(), nil
		default:
			return nil, err
		}
	}
}
