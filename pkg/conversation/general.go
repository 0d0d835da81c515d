package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"fireshot/models"
)

type recordResult struct {
	models.UserRecord
	found bool
}

// start registers a new user. Known users are ignored.
func (e *Engine) start(ctx context.Context, c *conversation) (Result, error) {
	ok, err := e.store.Exists(ctx, c.userID)
	if err != nil {
		return Result{}, fmt.Errorf("check user %d: %w", c.userID, err)
	}
	if ok {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if err := e.store.Put(ctx, c.userID, models.NewUserRecord()); err != nil {
		return Result{}, fmt.Errorf("create user %d: %w", c.userID, err)
	}
	e.log.Info("new user created", e.attrs(c)...)
	return Result{Replies: []Reply{markdown(msgWelcome + msgHelp)}, Outcome: OutcomeCompleted}, nil
}

// requireAccounts is the has-accounts precondition of the manage actions
// that need something to act on.
func (e *Engine) requireAccounts(c *conversation, rec recordResult) (Result, bool) {
	if rec.found && rec.HasAccounts() {
		return Result{}, true
	}
	e.log.Info("rejected: no accounts", e.attrs(c, slog.String("reason", RejectNoAccounts.String()))...)
	res := e.finish(c, OutcomeRejected, text(msgNoAccounts))
	res.Reason = RejectNoAccounts
	return res, false
}
