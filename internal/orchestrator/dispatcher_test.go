package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/controlplane"
)

// TestExecuteMapsLogicalIDToPort verifies the catalog port reaches the
// control plane and the reply is surfaced.
func TestExecuteMapsLogicalIDToPort(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	out, err := s.Execute(context.Background(), cluster.Data, cluster.Stop, "3")
	require.NoError(t, err)
	assert.Equal(t, OperationKey{Class: cluster.Data, Action: cluster.Stop, LogicalID: "3"}, out.Key)
	assert.Equal(t, "req-8003", out.RemoteRequestID)
	assert.Equal(t, "ok", out.Output)
	assert.NotEmpty(t, out.ID)

	calls := plane.controlCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, controlCall{class: cluster.Data, action: cluster.Stop, port: 8003}, calls[0])
}

// TestExecuteRejectsDuplicates verifies a second identical request fails
// while the first is in flight, and is accepted again once it settles.
func TestExecuteRejectsDuplicates(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	plane := &fakePlane{
		controlFn: func(ctx context.Context, class cluster.RoleClass, action cluster.Action, port int) (*controlplane.Reply, error) {
			entered <- struct{}{}
			<-release
			return &controlplane.Reply{Output: "started"}, nil
		},
	}
	s := newTestSession(t, plane)

	done := make(chan error, 1)
	go func() {
		_, err := s.Execute(context.Background(), cluster.Meta, cluster.Start, "1")
		done <- err
	}()
	<-entered

	assert.Equal(t, []OperationKey{{Class: cluster.Meta, Action: cluster.Start, LogicalID: "1"}}, s.InFlight())

	_, err := s.Execute(context.Background(), cluster.Meta, cluster.Start, "1")
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	assert.Len(t, plane.controlCalls(), 1, "duplicate must not reach the cluster")

	// A different key is independent.
	go func() {
		_, _ = s.Execute(context.Background(), cluster.Meta, cluster.Stop, "1")
	}()
	<-entered

	close(release)
	require.NoError(t, <-done)
	assert.Eventually(t, func() bool { return len(s.InFlight()) == 0 }, time.Second, 5*time.Millisecond)

	plane.mu.Lock()
	plane.controlFn = nil
	plane.mu.Unlock()
	_, err = s.Execute(context.Background(), cluster.Meta, cluster.Start, "1")
	assert.NoError(t, err)
}

// TestExecuteReleasesKeyOnFailure verifies failures settle the key and reach
// the listener.
func TestExecuteReleasesKeyOnFailure(t *testing.T) {
	remote := &cluster.RemoteError{Code: 500, Msg: "boom"}
	plane := &fakePlane{
		controlFn: func(context.Context, cluster.RoleClass, cluster.Action, int) (*controlplane.Reply, error) {
			return nil, remote
		},
	}
	l := &recordingListener{}
	s := newTestSession(t, plane, WithListener(l))

	_, err := s.Execute(context.Background(), cluster.Data, cluster.Start, "2")
	var re *cluster.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "boom", re.Msg)
	assert.Empty(t, s.InFlight())

	key := OperationKey{Class: cluster.Data, Action: cluster.Start, LogicalID: "2"}
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, []OperationKey{key}, l.started)
	assert.Equal(t, []OperationKey{key}, l.settled)
	assert.Equal(t, []error{remote}, l.errs)
}

// TestExecuteValidation verifies requests rejected before dispatch.
func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name    string
		class   cluster.RoleClass
		action  cluster.Action
		id      string
		wantErr error
	}{
		{"unknown node", cluster.Meta, cluster.Stop, "9", ErrUnknownNode},
		{"meta id on data", cluster.Data, cluster.Status, "x", ErrUnknownNode},
		{"start without id", cluster.Meta, cluster.Start, "", ErrUnsupported},
		{"stop without id", cluster.Data, cluster.Stop, "", ErrUnsupported},
		{"bad class", cluster.RoleClass(0), cluster.Stop, "1", ErrUnsupported},
		{"bad action", cluster.Meta, cluster.Action(42), "1", ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plane := &fakePlane{}
			s := newTestSession(t, plane)

			_, err := s.Execute(context.Background(), tt.class, tt.action, tt.id)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, plane.controlCalls())
			assert.Empty(t, s.InFlight())
		})
	}
}

// TestExecuteStatusWithoutID verifies a class-wide status query uses port 0
// and does not schedule a settle poll.
func TestExecuteStatusWithoutID(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	_, err := s.Execute(context.Background(), cluster.Meta, cluster.Status, "")
	require.NoError(t, err)
	assert.Equal(t, []controlCall{{class: cluster.Meta, action: cluster.Status}}, plane.controlCalls())

	time.Sleep(5 * testConfig().SettleDelay)
	assert.Equal(t, 0, plane.snapshotCalls())
}

// TestExecuteSchedulesSettlePoll verifies one poll follows a successful
// start and none follows a failure.
func TestExecuteSchedulesSettlePoll(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	_, err := s.Execute(context.Background(), cluster.Meta, cluster.Start, "2")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return plane.snapshotCalls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), s.View().Seq)

	plane.mu.Lock()
	plane.controlFn = func(context.Context, cluster.RoleClass, cluster.Action, int) (*controlplane.Reply, error) {
		return nil, errors.Mark(errors.New("refused"), cluster.ErrTransport)
	}
	plane.mu.Unlock()

	_, err = s.Execute(context.Background(), cluster.Meta, cluster.Stop, "2")
	assert.ErrorIs(t, err, cluster.ErrTransport)
	time.Sleep(5 * testConfig().SettleDelay)
	assert.Equal(t, 1, plane.snapshotCalls())
}

// TestInflightSet verifies acquire and release bookkeeping.
func TestInflightSet(t *testing.T) {
	s := newInflightSet()
	a := OperationKey{Class: cluster.Meta, Action: cluster.Start, LogicalID: "2"}
	b := OperationKey{Class: cluster.Data, Action: cluster.Stop, LogicalID: "1"}

	assert.True(t, s.acquire(a))
	assert.False(t, s.acquire(a))
	assert.True(t, s.acquire(b))
	assert.True(t, s.contains(a))
	assert.Equal(t, []OperationKey{a, b}, s.list())

	s.release(a)
	s.release(a)
	assert.False(t, s.contains(a))
	assert.Equal(t, "data_stop_1", b.String())
}
