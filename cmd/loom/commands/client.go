package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/internal/httpclient"
	"github.com/teranos/loom/internal/util"
)

// daemonTimeout bounds one-shot CLI requests against the local daemon.
// Control operations proxied to the supervisor take up to 10s, so this
// sits just above that.
const daemonTimeout = 12 * time.Second

// daemonClient is a minimal REST client for the loom daemon, used by the
// one-shot commands. The daemon always lives on localhost.
type daemonClient struct {
	baseURL string
	http    *httpclient.SaferClient
}

func newDaemonClient() *daemonClient {
	return &daemonClient{
		baseURL: fmt.Sprintf("http://localhost:%d", config.GetServerPort()),
		http: httpclient.NewSaferClientWithOptions(daemonTimeout, httpclient.SaferClientOptions{
			BlockPrivateIP: util.Ptr(false),
		}),
	}
}

// errorBody is the daemon's error response shape.
type errorBody struct {
	Error string `json:"error"`
}

func (d *daemonClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return errors.WithHint(
			errors.Wrap(err, "loom daemon unreachable"),
			"is the daemon running? start it with: loom monitor",
		)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read daemon response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			return errors.Newf("daemon: %s", eb.Error)
		}
		return errors.Newf("daemon returned HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(err, "failed to decode daemon response")
		}
	}
	return nil
}

func (d *daemonClient) get(ctx context.Context, path string, out interface{}) error {
	return d.do(ctx, http.MethodGet, path, nil, out)
}

func (d *daemonClient) post(ctx context.Context, path string, body, out interface{}) error {
	return d.do(ctx, http.MethodPost, path, body, out)
}
