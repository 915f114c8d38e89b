package orchestrator

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/topology"
)

// Decision is the operator's answer after a failed start in a batch.
type Decision int

const (
	// Abort stops the batch; remaining nodes are not attempted.
	Abort Decision = iota
	// Continue proceeds with the next node.
	Continue
)

func (d Decision) String() string {
	if d == Continue {
		return "continue"
	}
	return "abort"
}

// ConfirmFunc is asked whether a sequential start batch should go on after
// the operation on key failed with err.
type ConfirmFunc func(ctx context.Context, key OperationKey, err error) Decision

// AlwaysContinue is a ConfirmFunc that never aborts.
func AlwaysContinue(context.Context, OperationKey, error) Decision { return Continue }

// BatchOptions tunes RunBatch.
type BatchOptions struct {
	// LogicalID restricts the request to one node and bypasses batching.
	LogicalID string
	// Confirm decides whether a start batch continues after a failure.
	// A nil Confirm aborts.
	Confirm ConfirmFunc
}

// BatchItem is the outcome for one node of a batch.
type BatchItem struct {
	LogicalID string `json:"id"`
	Success   bool   `json:"success"`
	Output    string `json:"output,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Err       error  `json:"-"`
}

// BatchResult aggregates a batch. Items follow catalog order and only
// include nodes that were attempted.
type BatchResult struct {
	ID           string            `json:"id"`
	Class        cluster.RoleClass `json:"class"`
	Action       cluster.Action    `json:"action"`
	Items        []BatchItem       `json:"items"`
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
	Aborted      bool              `json:"aborted"`
	Duration     time.Duration     `json:"duration"`
}

func (r *BatchResult) add(item BatchItem) {
	r.Items = append(r.Items, item)
	if item.Success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
}

// BatchRunner runs one action over every node of a class under the policy
// of that action:
//
//	stop    all nodes at once; every outcome is awaited; failures are isolated
//	start   one node at a time in catalog order, pausing after each success;
//	        a failure asks Confirm whether to go on
//	status  all nodes at once; failures are only reported
//
// The session polls once after the whole batch, never per item.
type BatchRunner struct {
	catalog    *topology.Catalog
	dispatcher *Dispatcher
	metrics    *sessionMetrics
	schedule   func(time.Duration)
	cfg        Config
	// sleep waits d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// Run executes action over the nodes of class. With opts.LogicalID set it
// executes a single operation instead, with the dispatcher's own settle
// poll.
//
// The returned error is nil when the batch ran to completion, even if items
// failed. It is marked ErrBatchAborted when the operator aborted, and
// carries the context error when ctx ended first; the result holds every
// outcome gathered up to that point in both cases.
func (b *BatchRunner) Run(ctx context.Context, class cluster.RoleClass, action cluster.Action, opts BatchOptions) (*BatchResult, error) {
	if class != cluster.Meta && class != cluster.Data {
		return nil, errors.Wrapf(ErrUnsupported, "role class %d", int(class))
	}
	res := &BatchResult{ID: uuid.New().String(), Class: class, Action: action}
	start := time.Now()

	if opts.LogicalID != "" {
		out, err := b.dispatcher.Execute(ctx, class, action, opts.LogicalID)
		if errors.Is(err, ErrUnknownNode) || errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		res.add(itemOf(opts.LogicalID, out, err))
		res.Duration = time.Since(start)
		return res, nil
	}

	ids := b.catalog.LogicalIDs(class)
	plog.Infof("batch %s: %s %d %s nodes", res.ID, action, len(ids), class)

	var err error
	switch action {
	case cluster.Stop, cluster.Status:
		b.fanOut(ctx, res, ids)
	case cluster.Start:
		err = b.sequential(ctx, res, ids, opts.Confirm)
	default:
		return nil, errors.Wrapf(ErrUnsupported, "action %d", int(action))
	}

	res.Duration = time.Since(start)
	b.metrics.batched(res)
	plog.Infof("batch %s: %s %s done: %d ok, %d failed, aborted=%v",
		res.ID, action, class, res.SuccessCount, res.FailureCount, res.Aborted)
	if len(res.Items) > 0 {
		b.schedule(b.cfg.RefreshDelay)
	}
	return res, err
}

// fanOut issues every operation concurrently and waits for all of them.
func (b *BatchRunner) fanOut(ctx context.Context, res *BatchResult, ids []string) {
	items := make([]BatchItem, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			out, err := b.dispatcher.execute(ctx, res.Class, res.Action, id, false)
			items[i] = itemOf(id, out, err)
			return nil
		})
	}
	_ = g.Wait()
	for _, item := range items {
		res.add(item)
	}
}

// sequential starts nodes one at a time.
func (b *BatchRunner) sequential(ctx context.Context, res *BatchResult, ids []string, confirm ConfirmFunc) error {
	for i, id := range ids {
		out, err := b.dispatcher.execute(ctx, res.Class, res.Action, id, false)
		res.add(itemOf(id, out, err))
		last := i == len(ids)-1

		if err == nil {
			if last {
				break
			}
			if serr := b.sleep(ctx, b.cfg.StartInterval); serr != nil {
				return errors.Wrapf(serr, "batch %s interrupted", res.ID)
			}
			continue
		}

		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "batch %s interrupted", res.ID)
		}
		if last {
			break
		}
		key := OperationKey{Class: res.Class, Action: res.Action, LogicalID: id}
		decision := Abort
		if confirm != nil {
			decision = confirm(ctx, key, err)
		}
		plog.Infof("batch %s: %s failed, operator chose %s", res.ID, key, decision)
		if decision == Abort {
			res.Aborted = true
			return errors.Wrapf(ErrBatchAborted, "batch %s stopped after %s", res.ID, key)
		}
	}
	return nil
}

func itemOf(id string, out *Outcome, err error) BatchItem {
	if err != nil {
		return BatchItem{LogicalID: id, Reason: err.Error(), Err: err}
	}
	return BatchItem{LogicalID: id, Success: true, Output: out.Output}
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
