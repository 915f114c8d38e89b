package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterctl/internal/cluster"
)

type recordedRequest struct {
	method string
	path   string
	query  string
}

// newTestEndpoint starts a server that records every request and answers
// with body.
func newTestEndpoint(t *testing.T, body string) (*Client, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL + "/", Timeout: time.Second})
	require.NoError(t, err)
	return client, &requests
}

// TestConfigValidate verifies malformed endpoints are rejected up front.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{BaseURL: "http://localhost:8000"}},
		{name: "https", cfg: Config{BaseURL: "https://console.example:443"}},
		{name: "no scheme", cfg: Config{BaseURL: "localhost:8000"}, wantErr: true},
		{name: "ftp", cfg: Config{BaseURL: "ftp://localhost"}, wantErr: true},
		{name: "no host", cfg: Config{BaseURL: "http://"}, wantErr: true},
		{name: "negative timeout", cfg: Config{BaseURL: "http://x", Timeout: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestControlRequests verifies each action maps onto the right method, path
// and query.
func TestControlRequests(t *testing.T) {
	tests := []struct {
		name      string
		class     cluster.RoleClass
		action    cluster.Action
		port      int
		wantMeth  string
		wantPath  string
		wantQuery string
	}{
		{
			name: "start meta", class: cluster.Meta, action: cluster.Start, port: 9090,
			wantMeth: http.MethodPost, wantPath: "/api/fs/server/meta/start", wantQuery: "serverId=9090",
		},
		{
			name: "stop data", class: cluster.Data, action: cluster.Stop, port: 8003,
			wantMeth: http.MethodPost, wantPath: "/api/fs/server/data/stop", wantQuery: "serverId=8003",
		},
		{
			name: "status one", class: cluster.Data, action: cluster.Status, port: 8001,
			wantMeth: http.MethodGet, wantPath: "/api/fs/server/status", wantQuery: "serverId=8001&serverType=data",
		},
		{
			name: "status class", class: cluster.Meta, action: cluster.Status,
			wantMeth: http.MethodGet, wantPath: "/api/fs/server/status", wantQuery: "serverType=meta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, requests := newTestEndpoint(t, `{"code":200,"msg":"ok","requestId":"abc","data":"  done\n"}`)

			reply, err := client.Control(context.Background(), tt.class, tt.action, tt.port)
			require.NoError(t, err)
			assert.Equal(t, "done", reply.Output)
			assert.Equal(t, "abc", reply.RequestID)

			require.Len(t, *requests, 1)
			got := (*requests)[0]
			assert.Equal(t, tt.wantMeth, got.method)
			assert.Equal(t, tt.wantPath, got.path)
			assert.Equal(t, tt.wantQuery, got.query)
		})
	}
}

// TestControlRejectsMissingPort verifies start/stop need a target.
func TestControlRejectsMissingPort(t *testing.T) {
	client, requests := newTestEndpoint(t, `{"code":200,"msg":"ok"}`)

	_, err := client.Control(context.Background(), cluster.Meta, cluster.Start, 0)
	assert.Error(t, err)
	_, err = client.Control(context.Background(), cluster.Meta, cluster.Action(42), 9090)
	assert.Error(t, err)
	assert.Empty(t, *requests)
}

// TestControlRemoteError verifies non-200 envelope codes surface as RemoteError.
func TestControlRemoteError(t *testing.T) {
	client, _ := newTestEndpoint(t, `{"code":500,"msg":"启动MetaServer失败: port busy"}`)

	_, err := client.Control(context.Background(), cluster.Meta, cluster.Start, 9090)
	var remote *cluster.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 500, remote.Code)
	assert.Contains(t, remote.Msg, "port busy")
}

// TestSnapshot verifies the snapshot endpoint is decoded.
func TestSnapshot(t *testing.T) {
	client, requests := newTestEndpoint(t, `{"code":200,"msg":"ok","data":{
		"masterMetaServer":{"address":"localhost:9091"},
		"slaveMetaServers":[{"address":"localhost:9090"}],
		"dataServers":[{"address":"localhost:8001","capacity":100,"used":10}],
		"totalMetaServers":2,"totalDataServers":1}}`)

	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.MasterMeta)
	assert.Equal(t, "localhost:9091", snap.MasterMeta.Address)
	assert.Len(t, snap.SlaveMetas, 1)
	assert.Len(t, snap.DataNodes, 1)
	assert.Equal(t, "/api/fs/cluster", (*requests)[0].path)
}

// TestSnapshotMalformed verifies a bad payload is a decode error.
func TestSnapshotMalformed(t *testing.T) {
	client, _ := newTestEndpoint(t, `{"code":200,"msg":"ok","data":{"dataServers":"nope"}}`)

	_, err := client.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cluster.ErrDecode))
}

// TestHealth verifies the health message is taken from data when present.
func TestHealth(t *testing.T) {
	client, _ := newTestEndpoint(t, `{"code":200,"msg":"ok","data":"MinFS连接正常"}`)
	msg, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MinFS连接正常", msg)

	client, _ = newTestEndpoint(t, `{"code":500,"msg":"MinFS连接异常"}`)
	_, err = client.Health(context.Background())
	var remote *cluster.RemoteError
	assert.True(t, errors.As(err, &remote))
}

// TestDecodeOutput verifies non-string payloads are surfaced verbatim.
func TestDecodeOutput(t *testing.T) {
	assert.Equal(t, "", decodeOutput(nil))
	assert.Equal(t, "", decodeOutput([]byte("null")))
	assert.Equal(t, "running", decodeOutput([]byte(`"running\n"`)))
	assert.Equal(t, `{"pid":12}`, decodeOutput([]byte(`{"pid":12}`)))
}
