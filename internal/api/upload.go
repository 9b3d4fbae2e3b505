package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/sceneboard/internal/models"
)

// ProgressFunc receives the upload percentage (0-100). Values never
// decrease, including across a retry after a token refresh.
type ProgressFunc func(percent int)

// Upload sends file as the multipart field "file" to
// POST /api/boxes/{boxID}/upload/ and returns the created asset.
// Cancel ctx to abandon the upload.
func (c *Client) Upload(ctx context.Context, boxID int64, filename string, file io.ReadSeeker, progress ProgressFunc) (*models.Asset, error) {
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measure %s: %w", filename, err)
	}

	sink := &progressSink{fn: progress, last: -1}
	sink.report(0)

	spec := requestSpec{
		method:   http.MethodPost,
		endpoint: fmt.Sprintf("/api/boxes/%d/upload/", boxID),
		body: func() (io.Reader, int64, string, error) {
			return multipartBody(file, filename, size, sink)
		},
	}

	var asset models.Asset
	if err := c.execute(ctx, spec, &asset); err != nil {
		return nil, err
	}
	sink.report(100)
	return &asset, nil
}

// multipartBody streams head + file + tail with a known length so the
// transport reports real progress instead of buffering the whole file.
func multipartBody(file io.ReadSeeker, filename string, size int64, sink *progressSink) (io.Reader, int64, string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, "", fmt.Errorf("rewind %s: %w", filename, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile("file", filename); err != nil {
		return nil, 0, "", err
	}
	head := append([]byte(nil), buf.Bytes()...)
	if err := mw.Close(); err != nil {
		return nil, 0, "", err
	}
	tail := append([]byte(nil), buf.Bytes()[len(head):]...)

	total := int64(len(head)) + size + int64(len(tail))
	r := io.MultiReader(bytes.NewReader(head), io.LimitReader(file, size), bytes.NewReader(tail))
	return &countingReader{r: r, total: total, sink: sink}, total, mw.FormDataContentType(), nil
}

type countingReader struct {
	r     io.Reader
	read  int64
	total int64
	sink  *progressSink
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		if c.total > 0 {
			c.sink.report(int(c.read * 100 / c.total))
		}
	}
	return n, err
}

// progressSink forwards strictly increasing percentages to fn.
type progressSink struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
}

func (s *progressSink) report(percent int) {
	if s.fn == nil {
		return
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	if percent <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = percent
	s.mu.Unlock()
	s.fn(percent)
}
