package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestline/intake-bot/internal/approval"
	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/config"
	"github.com/requestline/intake-bot/internal/conversation"
	conversationmock "github.com/requestline/intake-bot/internal/conversation/mock"
	"github.com/requestline/intake-bot/internal/fsm"
	"github.com/requestline/intake-bot/internal/fulfillment"
	"github.com/requestline/intake-bot/internal/intent"
)

type searcherStub struct {
	results []catalog.Candidate
	err     error

	calls    int
	gotKind  catalog.MediaKind
	gotQuery string
}

func (s *searcherStub) Search(_ context.Context, kind catalog.MediaKind, query string) ([]catalog.Candidate, error) {
	s.calls++
	s.gotKind = kind
	s.gotQuery = query

	return s.results, s.err
}

type subunitStub struct {
	subunits []catalog.Subunit
	err      error
	calls    int
}

func (s *subunitStub) FetchSubunits(_ context.Context, _ catalog.Candidate) ([]catalog.Subunit, error) {
	s.calls++
	return s.subunits, s.err
}

type submitterStub struct {
	err   error
	calls int
	last  fulfillment.Request
}

func (s *submitterStub) Submit(_ context.Context, req fulfillment.Request) error {
	s.calls++
	s.last = req

	return s.err
}

type policyStub struct {
	policy approval.Policy
	err    error
}

func (p *policyStub) GetApprovalPolicy(_ context.Context) (approval.Policy, error) {
	return p.policy, p.err
}

type sentMessage struct {
	recipient string
	text      string
}

type transportStub struct {
	err  error
	sent []sentMessage
}

func (t *transportStub) Send(_ context.Context, recipientID, text string) error {
	t.sent = append(t.sent, sentMessage{recipient: recipientID, text: text})
	return t.err
}

// dispatchQueue collects dispatched side effects so tests control exactly
// when async completions run.
type dispatchQueue struct {
	fns []func()
}

func (d *dispatchQueue) dispatch(fn func()) {
	d.fns = append(d.fns, fn)
}

func (d *dispatchQueue) drain() {
	for len(d.fns) > 0 {
		fn := d.fns[0]
		d.fns = d.fns[1:]
		fn()
	}
}

type fixture struct {
	orch      *conversation.Orchestrator
	sessions  *conversationmock.Repository
	search    *searcherStub
	subunits  *subunitStub
	submitter *submitterStub
	policies  *policyStub
	transport *transportStub
	queue     *dispatchQueue
}

func newFixture(t *testing.T, opts ...conversationmock.RepositoryOption) *fixture {
	t.Helper()

	parser, err := intent.NewParser(intent.DefaultVocabulary())
	require.NoError(t, err)

	f := &fixture{
		sessions:  conversationmock.NewInMemRepository(opts...),
		search:    &searcherStub{},
		subunits:  &subunitStub{},
		submitter: &submitterStub{},
		policies:  &policyStub{policy: approval.PolicyAutoApprove},
		transport: &transportStub{},
		queue:     &dispatchQueue{},
	}
	f.orch = conversation.NewOrchestrator(
		&config.Conversation{SessionTTL: time.Minute, SweepInterval: time.Minute},
		f.sessions,
		parser,
		f.search,
		f.subunits,
		approval.NewService(f.policies, f.submitter),
		f.policies,
		f.transport,
		conversation.WithDispatcher(f.queue.dispatch),
	)

	return f
}

func (f *fixture) lastPush(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.transport.sent, "expected a pushed reply")

	return f.transport.sent[len(f.transport.sent)-1].text
}

func TestMovieRequestEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Inception", Year: 2010, RemoteID: "27205"},
	}
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-1", "chat-1", "I want to watch the movie Inception")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateSearching, reply.State)
	assert.Contains(t, reply.Text, `"Inception"`)

	f.queue.drain()
	assert.Equal(t, 1, f.search.calls)
	assert.Equal(t, catalog.MediaKindMovie, f.search.gotKind)
	assert.Equal(t, "Inception", f.search.gotQuery)
	assert.Contains(t, f.lastPush(t), "1. [movie] Inception (2010)")

	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingSelection, sess.State)

	reply, err = f.orch.ProcessMessage(ctx, "sender-1", "chat-1", "1")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingConfirmation, reply.State)
	assert.Contains(t, reply.Text, "Shall I request it?")

	reply, err = f.orch.ProcessMessage(ctx, "sender-1", "chat-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateProcessing, reply.State)
	assert.Contains(t, reply.Text, "Submitting your request for Inception")

	f.queue.drain()
	assert.Equal(t, 1, f.submitter.calls)
	assert.Equal(t, "Inception", f.submitter.last.Candidate.Title)
	assert.Equal(t, "sender-1", f.submitter.last.RequestedBy)
	assert.Contains(t, f.lastPush(t), "has been submitted")

	sess, err = f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, sess.State)
	assert.Nil(t, sess.Selected)
	assert.Empty(t, sess.Candidates)
}

func TestSeriesRequestWithSeasonSelection(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindSeries, Title: "Severance", Year: 2022, RemoteID: "95396", HasSubunits: true},
	}
	f.subunits.subunits = []catalog.Subunit{
		{Number: 1, EpisodeCount: 9},
		{Number: 2, EpisodeCount: 10},
		{Number: 3},
	}
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-2", "chat-2", "add the series Severance")
	require.NoError(t, err)
	assert.Equal(t, catalog.MediaKind(""), f.search.gotKind)

	f.queue.drain()
	assert.Equal(t, catalog.MediaKindSeries, f.search.gotKind)
	assert.Equal(t, "Severance", f.search.gotQuery)

	reply, err = f.orch.ProcessMessage(ctx, "sender-2", "chat-2", "1")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingSubunitSelection, reply.State)
	assert.Contains(t, reply.Text, "Severance has 3 season(s)")
	assert.Equal(t, 1, f.subunits.calls)

	reply, err = f.orch.ProcessMessage(ctx, "sender-2", "chat-2", "1, 3")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingConfirmation, reply.State)
	assert.Contains(t, reply.Text, "season(s) 1, 3")

	reply, err = f.orch.ProcessMessage(ctx, "sender-2", "chat-2", "yes")
	require.NoError(t, err)

	f.queue.drain()
	assert.Equal(t, 1, f.submitter.calls)
	assert.Equal(t, []int{1, 3}, f.submitter.last.Subunits)
	assert.False(t, f.submitter.last.AllSubunits)
}

func TestSeriesRequestAllSeasons(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindSeries, Title: "Dark", RemoteID: "70523", HasSubunits: true},
	}
	f.subunits.subunits = []catalog.Subunit{{Number: 1}, {Number: 2}, {Number: 3}}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-3", "chat-3", "I want to watch Dark the series")
	require.NoError(t, err)
	f.queue.drain()

	_, err = f.orch.ProcessMessage(ctx, "sender-3", "chat-3", "one")
	require.NoError(t, err)

	reply, err := f.orch.ProcessMessage(ctx, "sender-3", "chat-3", "all")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "all seasons")

	_, err = f.orch.ProcessMessage(ctx, "sender-3", "chat-3", "yes")
	require.NoError(t, err)
	f.queue.drain()

	assert.True(t, f.submitter.last.AllSubunits)
	assert.Equal(t, []int{1, 2, 3}, f.submitter.last.Subunits)
}

func TestCancelDuringSelection(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-4", "chat-4", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()

	cancelReply, err := f.orch.ProcessMessage(ctx, "sender-4", "chat-4", "cancel")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, cancelReply.State)
	assert.Contains(t, cancelReply.Text, "cancelled")

	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, sess.State)
	assert.Empty(t, sess.Candidates)
	assert.Empty(t, sess.Query)
}

func TestCancelRefusedWhileProcessing(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-5", "chat-5", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-5", "chat-5", "1")
	require.NoError(t, err)
	reply, err := f.orch.ProcessMessage(ctx, "sender-5", "chat-5", "yes")
	require.NoError(t, err)
	require.Equal(t, fsm.StateProcessing, reply.State)

	// The submission completion has not run yet.
	cancelReply, err := f.orch.ProcessMessage(ctx, "sender-5", "chat-5", "cancel")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateProcessing, cancelReply.State)
	assert.Contains(t, cancelReply.Text, "cannot be cancelled")

	f.queue.drain()
	assert.Equal(t, 1, f.submitter.calls)
	assert.Contains(t, f.lastPush(t), "has been submitted")
}

func TestDecliningConfirmationResets(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-6", "chat-6", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-6", "chat-6", "1")
	require.NoError(t, err)

	reply, err := f.orch.ProcessMessage(ctx, "sender-6", "chat-6", "no")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, reply.State)
	assert.Contains(t, reply.Text, "cancelled")
	assert.Equal(t, 0, f.submitter.calls)
}

func TestNoMatchesResetsToIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-7", "chat-7", "I want to watch Zzyzx Quux")
	require.NoError(t, err)
	f.queue.drain()

	assert.Contains(t, f.lastPush(t), "could not find any matches")

	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, sess.State)
}

func TestSearchFailureResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.search.err = errors.New("catalog unreachable")
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-8", "chat-8", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()

	assert.Contains(t, f.lastPush(t), "went wrong while searching")

	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, sess.State)
}

func TestStaleSearchCompletionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-9", "chat-9", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	pushed := len(f.transport.sent)

	// A duplicate completion arrives after the session moved on.
	f.orch.OnSearchComplete(ctx, reply.SessionID, f.search.results, nil)

	assert.Len(t, f.transport.sent, pushed)
	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingSelection, sess.State)
}

func TestDuplicateSubmissionCompletionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-10", "chat-10", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-10", "chat-10", "1")
	require.NoError(t, err)
	reply, err := f.orch.ProcessMessage(ctx, "sender-10", "chat-10", "yes")
	require.NoError(t, err)
	f.queue.drain()
	pushed := len(f.transport.sent)

	f.orch.OnSubmissionComplete(ctx, reply.SessionID, approval.Outcome{Status: approval.StatusSubmitted})

	assert.Len(t, f.transport.sent, pushed)
}

func TestSelectionOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Alien", RemoteID: "348"},
		{ID: "c2", Kind: catalog.MediaKindMovie, Title: "Aliens", RemoteID: "679"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-11", "chat-11", "I want to watch Alien")
	require.NoError(t, err)
	f.queue.drain()

	reply, err := f.orch.ProcessMessage(ctx, "sender-11", "chat-11", "7")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingSelection, reply.State)
	assert.Contains(t, reply.Text, "between 1 and 2")
}

func TestInvalidSeasonSelection(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindSeries, Title: "Dark", RemoteID: "70523", HasSubunits: true},
	}
	f.subunits.subunits = []catalog.Subunit{{Number: 1}, {Number: 2}}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-12", "chat-12", "add the series Dark")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-12", "chat-12", "1")
	require.NoError(t, err)

	reply, err := f.orch.ProcessMessage(ctx, "sender-12", "chat-12", "9")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateAwaitingSubunitSelection, reply.State)
	assert.Contains(t, reply.Text, "available seasons (1, 2)")
}

func TestSubunitFetchFailureResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindSeries, Title: "Dark", RemoteID: "70523", HasSubunits: true},
	}
	f.subunits.err = errors.New("catalog unreachable")
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-13", "chat-13", "add the series Dark")
	require.NoError(t, err)
	f.queue.drain()

	reply, err := f.orch.ProcessMessage(ctx, "sender-13", "chat-13", "1")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, reply.State)
	assert.Contains(t, reply.Text, "went wrong while searching")
}

func TestManualPolicyReportsPending(t *testing.T) {
	f := newFixture(t)
	f.policies.policy = approval.PolicyManual
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-14", "chat-14", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-14", "chat-14", "1")
	require.NoError(t, err)
	_, err = f.orch.ProcessMessage(ctx, "sender-14", "chat-14", "yes")
	require.NoError(t, err)
	f.queue.drain()

	assert.Equal(t, 0, f.submitter.calls)
	assert.Contains(t, f.lastPush(t), "waiting for approval")
}

func TestAutoDenyPolicyReportsRejection(t *testing.T) {
	f := newFixture(t)
	f.policies.policy = approval.PolicyAutoDeny
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-15", "chat-15", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-15", "chat-15", "1")
	require.NoError(t, err)

	reply, err := f.orch.ProcessMessage(ctx, "sender-15", "chat-15", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "declined automatically")

	f.queue.drain()
	assert.Equal(t, 0, f.submitter.calls)
	assert.Contains(t, f.lastPush(t), "was declined")
}

func TestSubmissionFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.submitter.err = errors.New("downstream rejected the request")
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-16", "chat-16", "I want to watch Heat")
	require.NoError(t, err)
	f.queue.drain()
	_, err = f.orch.ProcessMessage(ctx, "sender-16", "chat-16", "1")
	require.NoError(t, err)
	reply, err := f.orch.ProcessMessage(ctx, "sender-16", "chat-16", "yes")
	require.NoError(t, err)
	f.queue.drain()

	assert.Contains(t, f.lastPush(t), "could not be submitted: downstream rejected the request")

	sess, err := f.sessions.LoadSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, sess.State)
}

func TestMessageWhileSearchingAsksToWait(t *testing.T) {
	f := newFixture(t)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}
	ctx := context.Background()

	_, err := f.orch.ProcessMessage(ctx, "sender-17", "chat-17", "I want to watch Heat")
	require.NoError(t, err)

	// The search has not completed yet.
	reply, err := f.orch.ProcessMessage(ctx, "sender-17", "chat-17", "Heat")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateSearching, reply.State)
	assert.Contains(t, reply.Text, "Still searching")
	assert.Equal(t, 0, f.search.calls)
}

func TestFirstContactWithoutRequestShowsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.orch.ProcessMessage(ctx, "sender-18", "chat-18", "7")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateIdle, reply.State)
	assert.Contains(t, reply.Text, "Tell me what you would like to watch")

	// The follow-up message continues the same conversation record.
	second, err := f.orch.ProcessMessage(ctx, "sender-18", "chat-18", "x")
	require.NoError(t, err)
	assert.Equal(t, reply.SessionID, second.SessionID)
}

func TestSweepExpiredSessions(t *testing.T) {
	now := time.Now()
	f := newFixture(t,
		conversationmock.WithSession(conversation.Session{
			ID:         "live",
			SenderHash: "sender-a",
			State:      fsm.StateIdle,
			ExpiresAt:  now.Add(time.Minute),
		}),
		conversationmock.WithSession(conversation.Session{
			ID:         "expired",
			SenderHash: "sender-b",
			State:      fsm.StateAwaitingSelection,
			ExpiresAt:  now.Add(-time.Minute),
		}),
	)

	count, err := f.orch.SweepExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.sessions.LoadSession(context.Background(), "live")
	assert.NoError(t, err)
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	f := newFixture(t,
		conversationmock.WithSession(conversation.Session{
			ID:         "old",
			SenderHash: "sender-19",
			State:      fsm.StateAwaitingConfirmation,
			ExpiresAt:  time.Now().Add(-time.Minute),
		}),
	)
	f.search.results = []catalog.Candidate{
		{ID: "c1", Kind: catalog.MediaKindMovie, Title: "Heat", RemoteID: "949"},
	}

	reply, err := f.orch.ProcessMessage(context.Background(), "sender-19", "chat-19", "I want to watch Heat")
	require.NoError(t, err)
	assert.NotEqual(t, "old", reply.SessionID)
	assert.Equal(t, fsm.StateSearching, reply.State)
}
