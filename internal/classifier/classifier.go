// Package classifier talks to the blink classification service: one encoded
// frame in, one action label out.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/types"
)

const DefaultTimeout = 2 * time.Second

var (
	ErrStatus       = errors.New("classifier returned an error status")
	ErrBadResponse  = errors.New("classifier response not understood")
	ErrUnknownLabel = errors.New("unknown action label")
)

type Classifier interface {
	Classify(ctx context.Context, frame []byte) (types.Action, error)
}

type request struct {
	Image string `json:"image"`
}

type response struct {
	Action *string `json:"action"`
	Error  string  `json:"error,omitempty"`
}

// HTTP posts frames as base64 JSON to the service at URL.
type HTTP struct {
	URL    string
	Client *http.Client
	Logger *zap.Logger
}

func NewHTTP(url string, timeout time.Duration, logger *zap.Logger) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{URL: url, Client: &http.Client{Timeout: timeout}, Logger: logger}
}

func (c *HTTP) Classify(ctx context.Context, frame []byte) (types.Action, error) {
	body, err := json.Marshal(request{Image: base64.StdEncoding.EncodeToString(frame)})
	if err != nil {
		return types.ActionNone, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return types.ActionNone, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.ActionNone, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return types.ActionNone, err
	}

	var out response
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return types.ActionNone, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return types.ActionNone, fmt.Errorf("%w: %v", ErrBadResponse, decodeErr)
	}
	if out.Action == nil {
		return types.ActionNone, nil
	}
	a, ok := types.ParseAction(*out.Action)
	if !ok {
		return types.ActionNone, fmt.Errorf("%w: %q", ErrUnknownLabel, *out.Action)
	}
	if c.Logger != nil && a != types.ActionNone {
		c.Logger.Debug("frame classified", zap.Stringer("action", a))
	}
	return a, nil
}
