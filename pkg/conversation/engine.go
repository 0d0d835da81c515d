// Package conversation drives the chat workflows of the bot: registering
// accounts from example screenshots, updating balances from new screenshots
// and managing registered accounts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fireshot/pkg/firefly"
	"fireshot/pkg/ocr"
	"fireshot/pkg/store"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Directory lists ledger accounts.
type Directory interface {
	ListAccounts(ctx context.Context, accountType string) ([]firefly.Account, error)
}

// Reconciler brings a ledger account to an observed balance and returns the
// signed difference.
type Reconciler interface {
	ApplyBalance(ctx context.Context, accountID int64, observed decimal.Decimal) (decimal.Decimal, error)
}

// Hasher computes the perceptual hash of screenshot bytes.
type Hasher interface {
	Hash(data []byte) (*goimagehash.ImageHash, error)
}

// Options tune an Engine.
type Options struct {
	// Threshold is the exclusive maximum hash distance of a match.
	Threshold int
	// Timeout ends a workflow that received no event for this long.
	Timeout time.Duration
	// Allowed restricts the bot to the users it accepts. Nil allows everyone.
	Allowed func(userID int64) bool
	// AccountType filters ledger accounts offered by setup.
	AccountType string
	Logger      *slog.Logger
	// OnOutcome is called with the conversation lock held whenever a
	// workflow ends. It must not call back into the Engine.
	OnOutcome func(Ended)
}

// Engine routes events to per-user conversations. It is safe for concurrent
// use; events of one user are handled one at a time.
type Engine struct {
	store      store.Store
	directory  Directory
	reconciler Reconciler
	extractor  ocr.BalanceExtractor
	hasher     Hasher
	opts       Options
	log        *slog.Logger

	mu    sync.Mutex
	convs map[int64]*conversation
	open  atomic.Int64
}

// conversation is the state of one user. Exactly one of setup, update and
// manage is set while a workflow runs.
type conversation struct {
	mu       sync.Mutex
	userID   int64
	userName string
	workflow Workflow
	state    State
	session  string
	gen      uint64
	timer    *time.Timer

	setup  *setupSession
	update *balanceSession
}

// New builds an Engine.
func New(st store.Store, dir Directory, rec Reconciler, ext ocr.BalanceExtractor, h Hasher, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.AccountType == "" {
		opts.AccountType = "asset"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      st,
		directory:  dir,
		reconciler: rec,
		extractor:  ext,
		hasher:     h,
		opts:       opts,
		log:        log,
		convs:      map[int64]*conversation{},
	}
}

func (e *Engine) conversation(userID int64) *conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.convs[userID]
	if !ok {
		c = &conversation{userID: userID}
		e.convs[userID] = c
	}
	return c
}

func (e *Engine) allowed(userID int64) bool {
	return e.opts.Allowed == nil || e.opts.Allowed(userID)
}

// Active reports the workflow and state a user is in.
func (e *Engine) Active(userID int64) (Workflow, State) {
	c := e.conversation(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workflow, c.state
}

// Handle processes one event. The returned error is only set for failures
// the user cannot fix (store errors, incompatible hashes); the workflow has
// already been ended and its screenshot released when it is returned.
func (e *Engine) Handle(ctx context.Context, ev Event) (Result, error) {
	if !e.allowed(ev.UserID) {
		e.log.Info("event from unauthorized user", slog.Int64("user", ev.UserID))
		return Result{Outcome: OutcomeRejected, Reason: RejectUnauthorized}, nil
	}
	c := e.conversation(ev.UserID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.UserName != "" {
		c.userName = ev.UserName
	}

	res, err := e.dispatch(ctx, c, ev)
	if err != nil {
		e.log.Error("workflow failed",
			e.attrs(c, slog.String("error", err.Error()))...)
		if c.workflow != WorkflowNone {
			e.end(c, OutcomeFailed, nil)
		}
		res.Outcome = OutcomeFailed
		res.Replies = append(res.Replies, text(msgProcessingFailed))
	}
	if res.Workflow == WorkflowNone {
		res.Workflow = c.workflow
	}
	if res.Session == "" {
		res.Session = c.session
	}
	return res, err
}

func (e *Engine) dispatch(ctx context.Context, c *conversation, ev Event) (Result, error) {
	switch ev.Kind {
	case EventCommand:
		return e.command(ctx, c, ev.Command)
	case EventPhoto:
		switch {
		case c.workflow == WorkflowSetup && c.state == StateCaptureExample:
			return e.setupExample(ctx, c, ev.Photo)
		case c.workflow != WorkflowNone:
			return Result{Replies: []Reply{text(msgBusy)}, Outcome: OutcomeRejected, Reason: RejectBusy}, nil
		default:
			return e.startBalance(ctx, c, ev.Photo)
		}
	case EventCallback:
		choice, err := ParseChoice(ev.Data)
		if err != nil {
			e.log.Warn("bad callback data", e.attrs(c, slog.String("error", err.Error()))...)
			return Result{Outcome: OutcomeIgnored}, nil
		}
		return e.callback(ctx, c, choice)
	default:
		return Result{Outcome: OutcomeIgnored}, nil
	}
}

func (e *Engine) command(ctx context.Context, c *conversation, cmd string) (Result, error) {
	switch cmd {
	case CommandStart:
		return e.start(ctx, c)
	case CommandHelp:
		return Result{Replies: []Reply{markdown(msgHelp)}, Outcome: OutcomeCompleted}, nil
	case CommandCancel:
		return e.cancel(c), nil
	case CommandSetup, CommandManage:
		if c.workflow != WorkflowNone {
			return Result{Replies: []Reply{text(msgBusy)}, Outcome: OutcomeRejected, Reason: RejectBusy}, nil
		}
		if cmd == CommandSetup {
			return e.startSetup(ctx, c)
		}
		return e.startManage(ctx, c)
	default:
		return Result{Replies: []Reply{text(msgUnknownCommand)}, Outcome: OutcomeIgnored}, nil
	}
}

func (e *Engine) callback(ctx context.Context, c *conversation, ch Choice) (Result, error) {
	var (
		res     Result
		handled bool
		err     error
	)
	switch c.workflow {
	case WorkflowSetup:
		res, handled, err = e.setupChoice(ctx, c, ch)
	case WorkflowBalance:
		res, handled, err = e.balanceChoice(ctx, c, ch)
	case WorkflowManage:
		res, handled, err = e.manageChoice(ctx, c, ch)
	}
	if err != nil || handled {
		return res, err
	}
	e.log.Info("stale choice", e.attrs(c, slog.String("choice", ch.Data()))...)
	if c.workflow == WorkflowNone {
		return Result{Replies: []Reply{text(msgExpiredChoice)}, Outcome: OutcomeIgnored}, nil
	}
	return Result{Outcome: OutcomeIgnored}, nil
}

// cancel ends any running workflow.
func (e *Engine) cancel(c *conversation) Result {
	if c.workflow == WorkflowNone {
		return Result{Replies: []Reply{text(msgNothingToCancel)}, Outcome: OutcomeIgnored}
	}
	msg := msgOperationCanceled
	if c.workflow == WorkflowSetup {
		msg = msgSetupCanceled
	}
	return e.finish(c, OutcomeCancelled, text(msg))
}

// begin starts workflow w in state s.
func (e *Engine) begin(c *conversation, w Workflow, s State) {
	c.workflow = w
	c.session = uuid.NewString()
	e.transition(c, s)
}

// transition moves to s and restarts the idle timer.
func (e *Engine) transition(c *conversation, s State) {
	c.state = s
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(e.opts.Timeout, func() { e.expire(c, gen) })
	e.log.Info("workflow transition", e.attrs(c)...)
}

func (e *Engine) expire(c *conversation, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.workflow == WorkflowNone {
		return
	}
	e.end(c, OutcomeTimedOut, []Reply{text(msgOperationTimedOut)})
}

// finish ends the workflow and builds its final Result.
func (e *Engine) finish(c *conversation, o Outcome, replies ...Reply) Result {
	res := Result{Replies: replies, Outcome: o, Workflow: c.workflow, Session: c.session}
	e.end(c, o, nil)
	return res
}

// end is the single exit of every workflow: it releases the screenshot,
// stops the timer and forgets the session.
func (e *Engine) end(c *conversation, o Outcome, async []Reply) {
	if c.setup != nil && c.setup.screenshot != nil {
		e.release(c, c.setup.screenshot)
	}
	if c.update != nil && c.update.screenshot != nil {
		e.release(c, c.update.screenshot)
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	ended := Ended{UserID: c.userID, Workflow: c.workflow, State: c.state, Session: c.session, Outcome: o, Replies: async}
	e.log.Info("workflow ended", e.attrs(c, slog.String("outcome", o.String()))...)

	c.workflow, c.state, c.session = WorkflowNone, StateIdle, ""
	c.setup, c.update = nil, nil
	if e.opts.OnOutcome != nil {
		e.opts.OnOutcome(ended)
	}
}

func (e *Engine) release(c *conversation, s *Screenshot) {
	if err := s.Close(); err != nil {
		e.log.Error("screenshot release", e.attrs(c, slog.String("error", err.Error()))...)
	}
}

func (e *Engine) attrs(c *conversation, extra ...any) []any {
	a := []any{
		slog.Int64("user", c.userID),
		slog.String("workflow", c.workflow.String()),
		slog.String("state", c.state.String()),
	}
	if c.userName != "" {
		a = append(a, slog.String("name", c.userName))
	}
	if c.session != "" {
		a = append(a, slog.String("session", c.session))
	}
	return append(a, extra...)
}

// fireflyFailure reports a ledger failure to the user.
func fireflyFailure(err error) Reply {
	var ffErr *firefly.Error
	if errors.As(err, &ffErr) {
		return text(msgFireflyUnreachable, ffErr.Reason)
	}
	return text(msgFireflyUnreachable, err.Error())
}

// loadRecord reads the user's record, mapping a missing user to ok=false.
func (e *Engine) loadRecord(ctx context.Context, userID int64) (rec recordResult, err error) {
	r, err := e.store.Get(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return recordResult{}, nil
	}
	if err != nil {
		return recordResult{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	return recordResult{UserRecord: r, found: true}, nil
}
