// Package controlplane is the HTTP client for the storage cluster's control
// endpoints: cluster snapshot, health, and per-node start/stop/status.
package controlplane

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/pkg/capnslog"

	"github.com/dreamware/clusterctl/internal/cluster"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "controlplane")

// Config configures a Client.
type Config struct {
	// BaseURL is the control endpoint root, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout bounds every request. Zero means 5s.
	Timeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "invalid base url %q", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("base url %q must be http or https", c.BaseURL)
	}
	if u.Host == "" {
		return errors.Newf("base url %q has no host", c.BaseURL)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Reply is the settled result of a control command.
type Reply struct {
	RequestID string
	// Output is the free-form command output returned by the endpoint,
	// trimmed of surrounding whitespace. It may be empty.
	Output string
}

// Client talks to one control endpoint. It is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    16,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}, nil
}

// BaseURL returns the endpoint root.
func (c *Client) BaseURL() string {
	return c.base
}

// Snapshot fetches the current cluster snapshot.
func (c *Client) Snapshot(ctx context.Context) (*cluster.Snapshot, error) {
	var snap cluster.Snapshot
	if _, err := cluster.GetEnvelope(ctx, c.http, c.base+"/api/fs/cluster", &snap); err != nil {
		return nil, errors.Wrap(err, "fetch snapshot")
	}
	return &snap, nil
}

// Health checks the control endpoint's own health and returns its message.
func (c *Client) Health(ctx context.Context) (string, error) {
	env, err := cluster.GetEnvelope(ctx, c.http, c.base+"/api/fs/health", nil)
	if err != nil {
		return "", errors.Wrap(err, "health check")
	}
	msg := env.Msg
	var text string
	if len(env.Data) > 0 && cluster.Unmarshal(env.Data, &text) == nil && text != "" {
		msg = text
	}
	return msg, nil
}

// Control sends action to the node of class listening on port. A zero port
// is only valid for Status and asks for the status of the whole class.
func (c *Client) Control(ctx context.Context, class cluster.RoleClass, action cluster.Action, port int) (*Reply, error) {
	if port < 0 {
		return nil, errors.Newf("invalid port %d", port)
	}
	q := url.Values{}
	var target string
	switch action {
	case cluster.Start, cluster.Stop:
		if port == 0 {
			return nil, errors.Newf("%s %s requires a server id", action, class)
		}
		target = c.base + "/api/fs/server/" + class.String() + "/" + action.String()
	case cluster.Status:
		q.Set("serverType", class.String())
		target = c.base + "/api/fs/server/status"
	default:
		return nil, errors.Newf("unsupported action %d", int(action))
	}
	if port > 0 {
		q.Set("serverId", strconv.Itoa(port))
	}
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}

	plog.Debugf("%s %s port=%d", action, class, port)

	var env *cluster.Envelope
	var err error
	if action == cluster.Status {
		env, err = cluster.GetEnvelope(ctx, c.http, target, nil)
	} else {
		env, err = cluster.PostEnvelope(ctx, c.http, target, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s %d", action, class, port)
	}
	return &Reply{RequestID: env.RequestID, Output: decodeOutput(env.Data)}, nil
}

// decodeOutput turns the envelope data into text. The endpoint usually sends
// a JSON string; anything else is surfaced verbatim.
func decodeOutput(raw []byte) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := cluster.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
