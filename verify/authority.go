// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify contains the verification state machine and the
// coordination protocol that front ends use to reach it.
//
// The Authority is the single goroutine that owns the verification
// table. Front ends never touch the table: they open a private
// conversation (an entangled channel pair), hand one half to the
// Authority through the shared ingress queue, and exchange packets
// over the retained half. Because the Authority drains the queue
// serially, all state mutation is serialized without locks.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

const (
	// DefaultCodeTTL is how long an issued verification code stays
	// claimable.
	DefaultCodeTTL = 30 * time.Second

	// defaultSweepInterval is how often the Authority sweeps expired
	// codes while idle. Sweeps also run around every dispatch.
	defaultSweepInterval = time.Second
)

// AuthorityConfig configures a new Authority.
type AuthorityConfig struct {
	// Ingress is the queue the Authority drains. Required.
	Ingress *Ingress

	// Store persists pending/approved records. Required.
	Store Store

	// Clock drives code expiry and the idle sweep. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Random generates verification codes. Defaults to a
	// time-seeded PCG source.
	Random *rand.Rand

	// CodeTTL defaults to DefaultCodeTTL.
	CodeTTL time.Duration
}

// Authority owns the verification table. Create with NewAuthority,
// then call Run on its own goroutine. All fields are confined to that
// goroutine.
type Authority struct {
	ingress *Ingress
	store   Store
	clock   clock.Clock
	logger  *slog.Logger
	random  *rand.Rand
	codeTTL time.Duration

	records []*Record
	dirty   bool
}

// NewAuthority builds an Authority and loads the persisted table.
// Only pending and approved records survive a restart; the table
// starts dirty so the first pass rewrites the snapshot.
func NewAuthority(config AuthorityConfig) (*Authority, error) {
	if config.Ingress == nil {
		return nil, fmt.Errorf("verify: AuthorityConfig.Ingress is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("verify: AuthorityConfig.Store is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	random := config.Random
	if random == nil {
		seed := uint64(clk.Now().UnixNano())
		random = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	codeTTL := config.CodeTTL
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}

	persisted, err := config.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("verify: loading persisted records: %w", err)
	}
	records := make([]*Record, 0, len(persisted))
	for _, p := range persisted {
		records = append(records, &Record{
			DisplayName:   p.DisplayName,
			Identity:      p.Identity,
			AccountID:     p.AccountID,
			UserID:        p.UserID,
			State:         p.State,
			NoticeEventID: p.NoticeEventID,
		})
	}

	return &Authority{
		ingress: config.Ingress,
		store:   config.Store,
		clock:   clk,
		logger:  logger,
		random:  random,
		codeTTL: codeTTL,
		records: records,
		dirty:   true,
	}, nil
}

// Run drains the ingress queue until ctx is done or the queue is
// closed, serving one conversation at a time in arrival order. Expired
// codes are swept before and after every dispatch and on an idle tick.
// A snapshot failure is fatal: the process cannot continue without
// durable state.
func (a *Authority) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	a.logger.Info("authority waiting for conversations", "records", len(a.records))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sweep()
		case conversation, ok := <-a.ingress.C():
			if !ok {
				return nil
			}
			a.sweep()
			a.dispatch(ctx, conversation)
			a.sweep()
		}

		if a.dirty {
			if err := a.snapshot(); err != nil {
				return fmt.Errorf("verify: persisting table: %w", err)
			}
			a.dirty = false
		}
	}
}

// dispatch reads the conversation's request packet and handles it.
// Protocol violations abort only this conversation.
func (a *Authority) dispatch(ctx context.Context, conversation *Pair) {
	defer conversation.Close()

	request, err := conversation.Receive(ctx)
	if err != nil {
		a.logger.Warn("conversation closed before a request arrived", "error", err)
		return
	}

	switch packet := request.(type) {
	case ConnectQuery:
		a.handleConnectQuery(packet, conversation)
	case VerifyCode:
		a.handleVerifyCode(ctx, packet, conversation)
	case Approve:
		a.handleApprove(packet, conversation)
	case Remove:
		a.handleRemove(packet, conversation)
	case StatusQuery:
		a.handleStatusQuery(conversation)
	default:
		a.logger.Warn("unexpected packet kind in authority", "packet", fmt.Sprintf("%T", request))
	}
}

// handleConnectQuery creates a record with a fresh code for unseen
// identities and answers with the message the game server shows the
// player: code instructions (new), a wait notice (pending), or the
// empty string meaning "proceed" (approved).
func (a *Authority) handleConnectQuery(query ConnectQuery, conversation *Pair) {
	record := a.findByIdentity(query.Identity)
	if record == nil {
		record = &Record{
			DisplayName: query.Name,
			Identity:    query.Identity,
			State:       StateNew,
			Code:        a.generateCode(),
			CodeExpiry:  a.clock.Now().Add(a.codeTTL),
		}
		a.records = append(a.records, record)
	}

	switch record.State {
	case StateNew:
		response := fmt.Sprintf("Please send the following code in the verification room:\n%06d", record.Code)
		a.logger.Info("disconnecting unverified player", "name", query.Name, "identity", query.Identity)
		a.send(conversation, ConnectResponse{Message: response})
	case StatePending:
		a.logger.Info("disconnecting pending player", "name", query.Name, "identity", query.Identity)
		a.send(conversation, ConnectResponse{Message: "Your account is pending moderator approval. Please try again later."})
	case StateApproved:
		a.logger.Info("verified player connected", "name", query.Name, "identity", query.Identity)
		a.send(conversation, ConnectResponse{})
	}
}

// handleVerifyCode links a chat account to the record holding the
// submitted code. On a match it replies VerifyPending and then blocks
// for the follow-up LinkVerifyNotice so the notice event ID lands on
// the record before the snapshot.
//
// The follow-up wait stalls the whole ingress queue until the front
// end answers: dispatches are single-in-flight, so no other
// conversation progresses during the wait. Kept as-is from the
// original single-threaded design rather than fixed; revisit if front
// ends ever take long to post notices.
func (a *Authority) handleVerifyCode(ctx context.Context, submission VerifyCode, conversation *Pair) {
	if a.findByAccount(submission.AccountID) != nil {
		a.send(conversation, AlreadyLinked{})
		return
	}

	record := a.findByCode(submission.Code)
	if record == nil {
		a.send(conversation, VerifyCodeInvalid{})
		return
	}

	a.logger.Info("linking player to chat account",
		"name", record.DisplayName,
		"identity", record.Identity,
		"user_id", submission.UserID,
	)
	record.AccountID = submission.AccountID
	record.UserID = submission.UserID
	record.State = StatePending
	record.Code = 0
	record.CodeExpiry = time.Time{}
	a.dirty = true

	a.send(conversation, VerifyPending{Identity: record.Identity, Name: record.DisplayName})

	followUp, err := conversation.Receive(ctx)
	if err != nil {
		// The front end vanished before reporting the notice. The
		// link already happened and stands; there is just no notice
		// to retract later.
		a.logger.Warn("front end dropped before sending notice event ID", "identity", record.Identity, "error", err)
		return
	}
	notice, ok := followUp.(LinkVerifyNotice)
	if !ok {
		a.logger.Warn("unexpected packet while waiting for notice event ID",
			"identity", record.Identity,
			"packet", fmt.Sprintf("%T", followUp),
		)
		return
	}
	record.NoticeEventID = notice.EventID
}

// handleApprove marks the identity approved. The success reply
// carries the linked chat user so the front end can notify them.
//
// Only a Pending record can be approved: a New record has no chat
// account linked yet (no AccountID, no UserID), and an already
// Approved one has nothing left to approve.
func (a *Authority) handleApprove(approval Approve, conversation *Pair) {
	record := a.findByIdentity(approval.Identity)
	if record == nil || record.State != StatePending {
		a.send(conversation, ApprovalFailure{})
		return
	}

	a.logger.Info("approved player link",
		"name", record.DisplayName,
		"identity", record.Identity,
		"user_id", record.UserID,
	)
	a.send(conversation, ApprovalSuccess{UserID: record.UserID})
	record.State = StateApproved
	a.dirty = true
}

// handleRemove deletes whatever record is linked to the account. The
// stored notice event ID, if any, is handed back for retraction;
// otherwise the conversation just closes and the front end has
// nothing to clean up.
func (a *Authority) handleRemove(removal Remove, conversation *Pair) {
	record := a.findByAccount(removal.AccountID)
	if record != nil {
		a.logger.Info("unlinking player from chat account",
			"name", record.DisplayName,
			"identity", record.Identity,
			"user_id", record.UserID,
		)
		if record.NoticeEventID != "" {
			a.send(conversation, RemoveNotice{EventID: record.NoticeEventID})
		}
	}

	live := a.records[:0]
	for _, r := range a.records {
		if r.AccountID != 0 && r.AccountID == removal.AccountID {
			continue
		}
		live = append(live, r)
	}
	a.records = live
	a.dirty = true
}

// handleStatusQuery answers the read-only admin summary.
func (a *Authority) handleStatusQuery(conversation *Pair) {
	report := StatusReport{}
	for _, record := range a.records {
		switch record.State {
		case StateNew:
			report.New++
		case StatePending:
			report.Pending++
		case StateApproved:
			report.Approved++
		}
		report.Records = append(report.Records, RecordSummary{
			Identity:    record.Identity,
			DisplayName: record.DisplayName,
			UserID:      record.UserID,
			State:       record.State,
		})
	}
	a.send(conversation, report)
}

// send replies on a conversation, logging instead of failing when the
// peer has vanished. The table mutation, if any, stands either way.
func (a *Authority) send(conversation *Pair, packet Packet) {
	if err := conversation.Send(packet); err != nil {
		a.logger.Warn("dropping reply to vanished conversation",
			"packet", fmt.Sprintf("%T", packet),
			"error", err,
		)
	}
}

// sweep removes new records whose code expiry has passed. Expired
// records were never persisted, so the snapshot is untouched.
func (a *Authority) sweep() {
	now := a.clock.Now()
	live := a.records[:0]
	for _, record := range a.records {
		if record.State == StateNew && !record.CodeExpiry.IsZero() && !record.CodeExpiry.After(now) {
			a.logger.Info("verification code expired", "name", record.DisplayName, "identity", record.Identity)
			continue
		}
		live = append(live, record)
	}
	a.records = live
}

// snapshot rewrites the durable pending/approved subset.
func (a *Authority) snapshot() error {
	persisted := make([]PersistedRecord, 0, len(a.records))
	for _, record := range a.records {
		if record.State != StatePending && record.State != StateApproved {
			continue
		}
		persisted = append(persisted, PersistedRecord{
			DisplayName:   record.DisplayName,
			Identity:      record.Identity,
			AccountID:     record.AccountID,
			UserID:        record.UserID,
			State:         record.State,
			NoticeEventID: record.NoticeEventID,
		})
	}
	return a.store.Save(persisted)
}

// generateCode picks a 6-digit code distinct from every outstanding
// code.
func (a *Authority) generateCode() int {
	for {
		code := 100000 + a.random.IntN(900000)
		if a.findByCode(code) == nil {
			return code
		}
	}
}

func (a *Authority) findByIdentity(identity string) *Record {
	for _, record := range a.records {
		if record.Identity == identity {
			return record
		}
	}
	return nil
}

func (a *Authority) findByAccount(accountID uint64) *Record {
	for _, record := range a.records {
		if record.AccountID != 0 && record.AccountID == accountID {
			return record
		}
	}
	return nil
}

// findByCode matches only new records — a claimed code is cleared and
// can be reissued.
func (a *Authority) findByCode(code int) *Record {
	for _, record := range a.records {
		if record.State == StateNew && record.Code == code {
			return record
		}
	}
	return nil
}
