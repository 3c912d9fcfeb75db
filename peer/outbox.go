// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/acn-foundation/acn/acn"
)

// outboxQueueDepth bounds how many envelopes may wait per destination
// before senders block. Blocking, not dropping: the ordering guarantee
// only holds if nothing is discarded.
const outboxQueueDepth = 64

// dialFunc opens a framed envelope pipe to a remote node.
type dialFunc func(ctx context.Context, id libp2ppeer.ID) (acn.Pipe, error)

type outboxTask struct {
	envelope []byte
	record   *acn.AgentRecord
	result   chan error
}

// outbox serializes envelope delivery per destination node. Every
// envelope bound for a given peer ID flows through that destination's
// single worker goroutine, which reuses one stream and sends strictly
// in arrival order, so two envelopes from one agent to another can
// never overtake each other. A failed send gets exactly one reconnect
// and resend before the error surfaces to the enqueuer.
type outbox struct {
	ctx    context.Context
	dial   dialFunc
	logger *slog.Logger

	mu     sync.Mutex
	queues map[libp2ppeer.ID]chan outboxTask
	wg     sync.WaitGroup
}

func newOutbox(ctx context.Context, dial dialFunc, logger *slog.Logger) *outbox {
	return &outbox{
		ctx:    ctx,
		dial:   dial,
		logger: logger,
		queues: make(map[libp2ppeer.ID]chan outboxTask),
	}
}

// enqueue hands one envelope to id's worker and waits for the
// delivery result: nil once the remote node acknowledged success, an
// *acn.Error carrying the remote code on a refusal, or a transport
// error once the single reconnect has also failed.
func (o *outbox) enqueue(ctx context.Context, id libp2ppeer.ID, envelope []byte, record *acn.AgentRecord) error {
	task := outboxTask{envelope: envelope, record: record, result: make(chan error, 1)}
	queue := o.queueFor(id)
	select {
	case queue <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.ctx.Done():
		return fmt.Errorf("peer: outbox closed: %w", o.ctx.Err())
	}
	select {
	case err := <-task.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.ctx.Done():
		return fmt.Errorf("peer: outbox closed: %w", o.ctx.Err())
	}
}

func (o *outbox) queueFor(id libp2ppeer.ID) chan outboxTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	queue, ok := o.queues[id]
	if !ok {
		queue = make(chan outboxTask, outboxQueueDepth)
		o.queues[id] = queue
		o.wg.Add(1)
		go o.run(id, queue)
	}
	return queue
}

// wait blocks until all workers have observed shutdown.
func (o *outbox) wait() { o.wg.Wait() }

func (o *outbox) run(id libp2ppeer.ID, queue chan outboxTask) {
	defer o.wg.Done()
	var pipe acn.Pipe
	defer func() {
		if pipe != nil {
			_ = pipe.Close()
		}
	}()
	for {
		select {
		case task := <-queue:
			var err error
			pipe, err = o.send(pipe, id, task)
			task.result <- err
		case <-o.ctx.Done():
			return
		}
	}
}

// send delivers one task over pipe, dialing first if needed. On a
// transport failure it drops the stream, dials once more and resends;
// a second failure is final. The possibly replaced pipe is returned
// for reuse by the next task.
func (o *outbox) send(pipe acn.Pipe, id libp2ppeer.ID, task outboxTask) (acn.Pipe, error) {
	retried := false
	for {
		if pipe == nil {
			var err error
			pipe, err = o.dial(o.ctx, id)
			if err != nil {
				return nil, fmt.Errorf("peer: dialing %s: %w", id, err)
			}
		}
		err := o.exchange(pipe, task)
		if err == nil {
			return pipe, nil
		}
		var coded *acn.Error
		if errors.As(err, &coded) {
			// The remote answered; the stream is healthy and the
			// refusal is not retryable.
			return pipe, err
		}
		_ = pipe.Close()
		pipe = nil
		if retried {
			return nil, err
		}
		retried = true
		o.logger.Debug("envelope send failed, reconnecting once", "peer", id.String(), "error", err)
	}
}

func (o *outbox) exchange(pipe acn.Pipe, task outboxTask) error {
	if err := acn.SendEnvelope(pipe, task.envelope, task.record); err != nil {
		return err
	}
	status, err := acn.ReadStatus(pipe)
	if err != nil {
		return err
	}
	if status.Code != acn.StatusSuccess {
		return acn.Errorf(status.Code, "envelope refused: %s", strings.Join(status.Messages, "; "))
	}
	return nil
}
