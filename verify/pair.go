// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"errors"
	"sync"
)

// pairDepth is the per-direction buffer of a conversation. A legal
// conversation never has more than two packets in flight in one
// direction, so a full buffer means the peer is violating the
// protocol; Send fails rather than blocking the Authority.
const pairDepth = 8

var (
	// ErrClosed reports a send or receive on a conversation (or
	// ingress queue) whose peer has gone away.
	ErrClosed = errors.New("verify: conversation closed")

	// ErrStalled reports a send that would block because the peer has
	// stopped draining its side of the conversation.
	ErrStalled = errors.New("verify: conversation stalled")
)

// Pair is one half of a private duplex conversation between a front
// end and the Authority. A front end creates an entangled pair with
// Ingress.Open, which hands the remote half to the Authority; the two
// halves then exchange packets until either side calls Close.
//
// Each half is used by exactly one goroutine.
type Pair struct {
	out chan Packet
	in  chan Packet

	closeOnce sync.Once
	closed    chan struct{}
}

// newPair returns the two entangled halves of a conversation.
func newPair() (local, remote *Pair) {
	a := make(chan Packet, pairDepth)
	b := make(chan Packet, pairDepth)
	local = &Pair{out: a, in: b, closed: make(chan struct{})}
	remote = &Pair{out: b, in: a, closed: make(chan struct{})}
	return local, remote
}

// Send delivers a packet to the peer. Send never blocks: a vanished
// peer leaves its packets undelivered in the buffer, and a peer that
// has stopped draining with the buffer full yields ErrStalled. No
// legal conversation comes near pairDepth packets in flight.
func (p *Pair) Send(pkt Packet) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.out <- pkt:
		return nil
	default:
		return ErrStalled
	}
}

// Receive blocks until the peer sends a packet, the peer closes its
// half (ErrClosed), or ctx is done.
func (p *Pair) Receive(ctx context.Context) (Packet, error) {
	select {
	case pkt, ok := <-p.in:
		if !ok {
			return nil, ErrClosed
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends this half of the conversation. The peer's next Receive
// (after draining buffered packets) returns ErrClosed. Idempotent.
func (p *Pair) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		close(p.out)
	})
}

// Ingress is the single well-known queue through which front ends hand
// the Authority the remote half of a new conversation. It is
// multi-producer single-consumer and unbounded: Open never blocks on
// queue capacity, admission control is deliberately absent, and the
// Authority drains arrivals strictly in arrival order.
type Ingress struct {
	submit  chan *Pair
	deliver chan *Pair

	closeOnce sync.Once
	done      chan struct{}
}

// NewIngress creates the queue and starts its pump goroutine. The
// pump exits when Close is called.
func NewIngress() *Ingress {
	q := &Ingress{
		submit:  make(chan *Pair),
		deliver: make(chan *Pair),
		done:    make(chan struct{}),
	}
	go q.pump()
	return q
}

// pump shuttles conversation handles from submitters to the consumer
// through an unbounded in-memory backlog, preserving arrival order.
func (q *Ingress) pump() {
	var backlog []*Pair
	for {
		var deliver chan *Pair
		var next *Pair
		if len(backlog) > 0 {
			deliver = q.deliver
			next = backlog[0]
		}

		select {
		case pair := <-q.submit:
			backlog = append(backlog, pair)
		case deliver <- next:
			backlog = backlog[1:]
		case <-q.done:
			close(q.deliver)
			return
		}
	}
}

// Open creates a conversation, queues its remote half for the
// Authority, and returns the local half. The caller must Close the
// returned half when the conversation is over.
func (q *Ingress) Open() (*Pair, error) {
	local, remote := newPair()
	select {
	case q.submit <- remote:
		return local, nil
	case <-q.done:
		return nil, ErrClosed
	}
}

// C returns the consumer channel. Only the Authority receives from
// it; the channel is closed after Close. Exposing the channel (rather
// than a Receive method) lets the Authority select between arrivals
// and its sweep ticker.
func (q *Ingress) C() <-chan *Pair {
	return q.deliver
}

// Close shuts the queue down. Subsequent Opens fail with ErrClosed;
// undelivered conversation handles are dropped. Idempotent.
func (q *Ingress) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
