package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/sym"
)

// VersionConstraint is the supervisor API range this client understands.
const VersionConstraint = ">= 1.0.0, < 2.0.0"

// VersionInfo is the supervisor's /api/version payload.
type VersionInfo struct {
	Version string `json:"version"`
}

// Version fetches the version string the supervisor reports.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err, "version request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read version response")
	}
	if err := classifyResponse(resp.StatusCode, body); err != nil {
		return "", err
	}

	var info VersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", errors.Wrapf(err, "failed to unmarshal version response %q", truncateForError(body))
	}
	if info.Version == "" {
		return "", errors.New("supervisor reported an empty version")
	}
	return info.Version, nil
}

// CheckVersion performs the startup version handshake: fetch the supervisor
// version and test it against VersionConstraint. A violation comes back as
// an error for the caller to log; the handshake never blocks monitoring.
func (c *Client) CheckVersion(ctx context.Context) error {
	raw, err := c.Version(ctx)
	if err != nil {
		return errors.Wrap(err, "version handshake failed")
	}

	v, err := semver.NewVersion(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return errors.Wrapf(err, "supervisor reported unparseable version %q", raw)
	}

	constraint, err := semver.NewConstraint(VersionConstraint)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %q", VersionConstraint)
	}

	if !constraint.Check(v) {
		return errors.Newf("supervisor version %s outside supported range %q", raw, VersionConstraint)
	}

	c.logger.Debugw("Supervisor version compatible",
		"symbol", sym.Net,
		"version", raw,
		"constraint", VersionConstraint,
	)
	return nil
}
