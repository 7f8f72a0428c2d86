// Package conversation drives the per-user request-intake conversation:
// it loads the session, parses the inbound message, validates the state
// transition, triggers search and submission side effects, and produces the
// outbound reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/approval"
	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/config"
	"github.com/requestline/intake-bot/internal/fsm"
	"github.com/requestline/intake-bot/internal/fulfillment"
	"github.com/requestline/intake-bot/internal/intent"
	"github.com/requestline/intake-bot/internal/serviceerr"
	"github.com/requestline/intake-bot/internal/transport"
)

// Decider resolves a confirmed selection into an approval outcome. It is
// invoked at most once per confirmed selection, guarded by the PROCESSING
// state.
type Decider interface {
	Decide(ctx context.Context, req fulfillment.Request) (approval.Outcome, error)
}

// Reply is the synchronous answer to one inbound message. Async completions
// push further replies through the transport independently.
type Reply struct {
	Text      string
	State     fsm.State
	SessionID string
}

type Orchestrator struct {
	sessions  Repository
	parser    *intent.Parser
	search    catalog.Searcher
	subunits  catalog.SubunitLookup
	approvals Decider
	policies  approval.PolicyStore
	transport transport.Transport

	// replyTargets maps session id to the chat recipient awaiting async
	// replies. Entries expire with the session TTL so the table cannot
	// outgrow the live session set.
	replyTargets *cache.Cache

	sessionTTL time.Duration
	dispatch   func(func())
}

type Option func(*Orchestrator)

// WithDispatcher replaces the goroutine dispatcher used for search and
// submission side effects. Tests use a synchronous dispatcher.
func WithDispatcher(dispatch func(func())) Option {
	return func(o *Orchestrator) {
		o.dispatch = dispatch
	}
}

func NewOrchestrator(
	cfg *config.Conversation,
	sessions Repository,
	parser *intent.Parser,
	search catalog.Searcher,
	subunits catalog.SubunitLookup,
	approvals Decider,
	policies approval.PolicyStore,
	tp transport.Transport,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		sessions:     sessions,
		parser:       parser,
		search:       search,
		subunits:     subunits,
		approvals:    approvals,
		policies:     policies,
		transport:    tp,
		replyTargets: cache.New(cfg.SessionTTL, cfg.SweepInterval),
		sessionTTL:   cfg.SessionTTL,
		dispatch:     func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// ProcessMessage is the single entry point for inbound chat messages.
// replyTo identifies where async completion replies for this session go.
func (o *Orchestrator) ProcessMessage(ctx context.Context, senderHash, replyTo, text string) (Reply, error) {
	now := time.Now()

	sess, created, err := o.loadOrCreate(ctx, senderHash, now)
	if err != nil {
		return Reply{}, fmt.Errorf("loading session: %w", err)
	}

	ctx = slogctx.With(ctx, "session_id", sess.ID, "state", string(sess.State))
	o.replyTargets.Set(sess.ID, replyTo, o.sessionTTL)

	in := o.parser.Parse(text, sess.State)

	var replyText string
	if in.Type == intent.TypeCancel {
		replyText, err = o.handleCancel(ctx, &sess, now)
	} else {
		switch sess.State {
		case fsm.StateIdle:
			replyText, err = o.handleIdle(ctx, &sess, in, now)
		case fsm.StateSearching:
			replyText = replyPleaseWaitSearch
		case fsm.StateAwaitingSelection:
			replyText, err = o.handleSelection(ctx, &sess, in, now)
		case fsm.StateAwaitingSubunitSelection:
			replyText, err = o.handleSubunitSelection(ctx, &sess, in, now)
		case fsm.StateAwaitingConfirmation:
			replyText, err = o.handleConfirmation(ctx, &sess, in, now)
		case fsm.StateProcessing:
			replyText = replyPleaseWaitProcessing
		default:
			slogctx.Error(ctx, "Session in unknown state, resetting", "state", sess.State)
			sess.Reset()
			sess.Touch(now, o.sessionTTL)
			err = o.persist(ctx, sess, created)
			replyText = replyRetry
		}
	}
	if err != nil {
		return Reply{}, err
	}

	// New sessions are persisted even when the first message was not
	// actionable, so follow-up messages share one conversation record.
	if created && sess.State == fsm.StateIdle {
		if err := o.sessions.CreateSession(ctx, sess); err != nil && !errors.Is(err, serviceerr.ErrConflict) {
			return Reply{}, fmt.Errorf("creating session: %w", err)
		}
	}

	return Reply{Text: replyText, State: sess.State, SessionID: sess.ID}, nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, senderHash string, now time.Time) (Session, bool, error) {
	sess, err := o.sessions.LoadBySender(ctx, senderHash)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, serviceerr.ErrNotFound) {
		return Session{}, false, err
	}

	sess = Session{
		ID:         uuid.NewString(),
		SenderHash: senderHash,
		State:      fsm.StateIdle,
		CreatedAt:  now,
	}
	sess.Touch(now, o.sessionTTL)

	return sess, true, nil
}

func (o *Orchestrator) handleCancel(ctx context.Context, sess *Session, now time.Time) (string, error) {
	res := fsm.ProcessAction(sess.State, fsm.Action{Type: fsm.ActionCancel})
	if !res.Valid {
		// Cancellation is refused while a submission is in flight.
		return replyCannotCancel, nil
	}

	sess.Reset()
	sess.Touch(now, o.sessionTTL)
	if err := o.sessions.StoreSession(ctx, *sess); err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		return "", fmt.Errorf("storing cancelled session: %w", err)
	}

	slogctx.Info(ctx, "Conversation cancelled by user")

	return replyCancelled, nil
}

func (o *Orchestrator) handleIdle(ctx context.Context, sess *Session, in intent.Intent, now time.Time) (string, error) {
	if in.Type != intent.TypeMediaRequest {
		return replyUsage, nil
	}

	res := fsm.ProcessAction(sess.State, fsm.Action{Type: fsm.ActionStartSearch})
	if !res.Valid {
		slogctx.Warn(ctx, "Rejected transition", "action", fsm.ActionStartSearch, "reason", res.Reason)
		return replyRetry, nil
	}

	sess.State = res.NewState
	sess.MediaKind = in.Kind
	sess.Query = in.Query
	sess.Touch(now, o.sessionTTL)
	if err := o.persist(ctx, *sess, true); err != nil {
		return "", fmt.Errorf("storing searching session: %w", err)
	}

	sessionID := sess.ID
	kind := in.Kind
	query := in.Query
	searchCtx := context.WithoutCancel(ctx)
	o.dispatch(func() {
		results, err := o.search.Search(searchCtx, kind, query)
		o.OnSearchComplete(searchCtx, sessionID, results, err)
	})

	slogctx.Info(ctx, "Catalog search started", "kind", string(kind))

	return replySearching(in.Query), nil
}

func (o *Orchestrator) handleSelection(ctx context.Context, sess *Session, in intent.Intent, now time.Time) (string, error) {
	if in.Type != intent.TypeSelection || in.Selection < 1 || in.Selection > len(sess.Candidates) {
		return replySelectionOutOfRange(len(sess.Candidates)), nil
	}

	candidate := sess.Candidates[in.Selection-1]

	var subunits []catalog.Subunit
	if candidate.HasSubunits {
		var err error
		subunits, err = o.subunits.FetchSubunits(ctx, candidate)
		if err != nil {
			slogctx.Error(ctx, "Fetching subunits failed", "error", err)
			sess.Reset()
			sess.Touch(now, o.sessionTTL)
			if storeErr := o.sessions.StoreSession(ctx, *sess); storeErr != nil {
				return "", fmt.Errorf("storing reset session: %w", storeErr)
			}

			return replySearchFailed, nil
		}
	}

	res := fsm.ProcessAction(sess.State, fsm.Action{
		Type:        fsm.ActionSelectResult,
		HasSubunits: len(subunits) > 0,
	})
	if !res.Valid {
		slogctx.Warn(ctx, "Rejected transition", "action", fsm.ActionSelectResult, "reason", res.Reason)
		return replyRetry, nil
	}

	sess.State = res.NewState
	sess.SelectedIndex = in.Selection
	sess.Selected = &candidate
	sess.AvailableSubunits = subunits
	sess.Touch(now, o.sessionTTL)
	if err := o.sessions.StoreSession(ctx, *sess); err != nil {
		return "", fmt.Errorf("storing selection: %w", err)
	}

	if len(subunits) > 0 {
		return replySubunitPrompt(candidate.Title, subunits), nil
	}

	return replyConfirmationPrompt(candidate, nil, false), nil
}

func (o *Orchestrator) handleSubunitSelection(ctx context.Context, sess *Session, in intent.Intent, now time.Time) (string, error) {
	if in.Type != intent.TypeSubunitSelection {
		return replySubunitInvalid(sess.AvailableSubunits), nil
	}

	if !in.AllSubunits {
		available := make(map[int]struct{}, len(sess.AvailableSubunits))
		for _, u := range sess.AvailableSubunits {
			available[u.Number] = struct{}{}
		}
		for _, n := range in.Subunits {
			if _, ok := available[n]; !ok {
				return replySubunitInvalid(sess.AvailableSubunits), nil
			}
		}
	}

	res := fsm.ProcessAction(sess.State, fsm.Action{Type: fsm.ActionSelectSubunits})
	if !res.Valid {
		slogctx.Warn(ctx, "Rejected transition", "action", fsm.ActionSelectSubunits, "reason", res.Reason)
		return replyRetry, nil
	}

	sess.State = res.NewState
	sess.AllSubunits = in.AllSubunits
	sess.SelectedSubunits = in.Subunits
	if in.AllSubunits {
		numbers := make([]int, 0, len(sess.AvailableSubunits))
		for _, u := range sess.AvailableSubunits {
			numbers = append(numbers, u.Number)
		}
		sess.SelectedSubunits = numbers
	}
	sess.Touch(now, o.sessionTTL)
	if err := o.sessions.StoreSession(ctx, *sess); err != nil {
		return "", fmt.Errorf("storing subunit selection: %w", err)
	}

	return replyConfirmationPrompt(*sess.Selected, sess.SelectedSubunits, sess.AllSubunits), nil
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, sess *Session, in intent.Intent, now time.Time) (string, error) {
	if in.Type != intent.TypeConfirmation {
		return replyRetry, nil
	}

	// Declining behaves exactly like a cancel.
	if !in.Confirmed {
		return o.handleCancel(ctx, sess, now)
	}

	res := fsm.ProcessAction(sess.State, fsm.Action{Type: fsm.ActionConfirm})
	if !res.Valid {
		slogctx.Warn(ctx, "Rejected transition", "action", fsm.ActionConfirm, "reason", res.Reason)
		return replyRetry, nil
	}

	sess.State = res.NewState
	sess.Touch(now, o.sessionTTL)
	if err := o.sessions.StoreSession(ctx, *sess); err != nil {
		return "", fmt.Errorf("storing processing session: %w", err)
	}

	req := fulfillment.Request{
		Candidate:   *sess.Selected,
		Subunits:    sess.SelectedSubunits,
		AllSubunits: sess.AllSubunits,
		RequestedBy: sess.SenderHash,
	}
	sessionID := sess.ID
	submitCtx := context.WithoutCancel(ctx)
	o.dispatch(func() {
		outcome, err := o.approvals.Decide(submitCtx, req)
		if err != nil {
			slogctx.Error(submitCtx, "Approval decision failed", "session_id", sessionID, "error", err)
			outcome = approval.Outcome{Status: approval.StatusFailed}
		}

		o.OnSubmissionComplete(submitCtx, sessionID, outcome)
	})

	title := sess.Selected.Title

	// A known auto-deny policy gets an honest reply instead of a
	// misleading "submitting" message.
	if policy, err := o.policies.GetApprovalPolicy(ctx); err == nil && policy == approval.PolicyAutoDeny {
		return replyPolicyDeclines(title), nil
	}

	return replySubmitting(title), nil
}

// OnSearchComplete re-enters the conversation when a catalog search
// finishes. A session that is no longer SEARCHING (cancelled, expired, or
// already completed by a duplicate callback) drops the result silently.
func (o *Orchestrator) OnSearchComplete(ctx context.Context, sessionID string, results []catalog.Candidate, searchErr error) {
	sess, err := o.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		slogctx.Debug(ctx, "Dropping search completion for unknown session", "session_id", sessionID, "error", err)
		return
	}

	if sess.State != fsm.StateSearching {
		slogctx.Debug(ctx, "Dropping stale search completion", "session_id", sessionID, "state", string(sess.State))
		return
	}

	now := time.Now()
	query := sess.Query

	switch {
	case searchErr != nil:
		slogctx.Error(ctx, "Catalog search failed", "session_id", sessionID, "error", searchErr)
		o.applyReset(ctx, &sess, fsm.Action{Type: fsm.ActionSearchFailed}, now)
		o.push(ctx, sessionID, replySearchFailed)

	case len(results) == 0:
		o.applyReset(ctx, &sess, fsm.Action{Type: fsm.ActionSearchCompleted, Empty: true}, now)
		o.push(ctx, sessionID, replyNoMatches(query))

	default:
		if len(results) > catalog.MaxCandidates {
			results = results[:catalog.MaxCandidates]
		}

		res := fsm.ProcessAction(sess.State, fsm.Action{Type: fsm.ActionSearchCompleted})
		sess.State = res.NewState
		sess.Candidates = results
		sess.Touch(now, o.sessionTTL)
		if err := o.sessions.StoreSession(ctx, sess); err != nil {
			slogctx.Error(ctx, "Storing search results failed", "session_id", sessionID, "error", err)
			return
		}

		o.push(ctx, sessionID, replySelectionPrompt(results))
	}
}

// OnSubmissionComplete re-enters the conversation when the approval
// decision (and any downstream submission) finishes. Stale callbacks are
// dropped silently.
func (o *Orchestrator) OnSubmissionComplete(ctx context.Context, sessionID string, outcome approval.Outcome) {
	sess, err := o.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		slogctx.Debug(ctx, "Dropping submission completion for unknown session", "session_id", sessionID, "error", err)
		return
	}

	if sess.State != fsm.StateProcessing {
		slogctx.Debug(ctx, "Dropping stale submission completion", "session_id", sessionID, "state", string(sess.State))
		return
	}

	title := ""
	if sess.Selected != nil {
		title = sess.Selected.Title
	}

	action := fsm.Action{Type: fsm.ActionProcessingCompleted}
	if outcome.Status == approval.StatusFailed {
		action = fsm.Action{Type: fsm.ActionProcessingFailed}
	}
	o.applyReset(ctx, &sess, action, time.Now())

	o.push(ctx, sessionID, replyOutcome(title, outcome))
}

// SweepExpiredSessions removes sessions whose TTL has passed. The
// housekeeper job calls this periodically.
func (o *Orchestrator) SweepExpiredSessions(ctx context.Context) (int, error) {
	count, err := o.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}

	if count > 0 {
		slogctx.Info(ctx, "Swept expired sessions", "count", count)
	}

	return count, nil
}

func (o *Orchestrator) applyReset(ctx context.Context, sess *Session, action fsm.Action, now time.Time) {
	res := fsm.ProcessAction(sess.State, action)
	if !res.Valid {
		slogctx.Warn(ctx, "Rejected transition during completion", "action", action.Type, "reason", res.Reason)
		return
	}

	sess.Reset()
	sess.State = res.NewState
	sess.Touch(now, o.sessionTTL)
	if err := o.sessions.StoreSession(ctx, *sess); err != nil {
		slogctx.Error(ctx, "Storing reset session failed", "session_id", sess.ID, "error", err)
	}
}

// push sends an out-of-band reply to the recipient recorded for the
// session. A missing target means the session outlived its reply window;
// the reply is dropped.
func (o *Orchestrator) push(ctx context.Context, sessionID, text string) {
	target, ok := o.replyTargets.Get(sessionID)
	if !ok {
		slogctx.Warn(ctx, "No reply target for session", "session_id", sessionID)
		return
	}

	recipientID, ok := target.(string)
	if !ok {
		return
	}

	if err := o.transport.Send(ctx, recipientID, text); err != nil {
		slogctx.Error(ctx, "Pushing reply failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, sess Session, allowCreate bool) error {
	err := o.sessions.StoreSession(ctx, sess)
	if allowCreate && errors.Is(err, serviceerr.ErrNotFound) {
		return o.sessions.CreateSession(ctx, sess)
	}

	return err
}
