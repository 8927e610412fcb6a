// Package capture pulls still frames from a camera and feeds classified
// detections to the dispatcher at a bounded rate.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoFrames  = errors.New("no frames available")
	ErrExhausted = errors.New("frame source exhausted")
)

// Source yields encoded still frames (JPEG). An error from Frame is a camera
// failure and ends the session.
type Source interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Snapshot fetches one frame per call from a camera's HTTP snapshot endpoint.
type Snapshot struct {
	URL    string
	Client *http.Client
}

func NewSnapshot(url string, timeout time.Duration) *Snapshot {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Snapshot{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *Snapshot) Frame(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrames
	}
	return data, nil
}

// Replay serves the JPEG files of a directory in name order, for demos and
// for exercising a classifier offline.
type Replay struct {
	files []string
	loop  bool

	mu   sync.Mutex
	next int
}

func NewReplay(dir string, loop bool) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open replay dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	sort.Strings(files)
	return &Replay{files: files, loop: loop}, nil
}

func (r *Replay) Len() int { return len(r.files) }

func (r *Replay) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.next >= len(r.files) {
		if !r.loop {
			r.mu.Unlock()
			return nil, ErrExhausted
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++
	r.mu.Unlock()

	return os.ReadFile(path)
}
