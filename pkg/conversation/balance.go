package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fireshot/models"
	"fireshot/pkg/match"
	"fireshot/pkg/ocr"
)

// balanceSession holds one balance update.
type balanceSession struct {
	screenshot *Screenshot
	accounts   []models.AccountDescriptor
	groups     []match.Group
}

// startBalance matches a screenshot against the user's accounts. Users
// without accounts are rejected silently since there is nothing to match.
func (e *Engine) startBalance(ctx context.Context, c *conversation, photo []byte) (Result, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	if !rec.found {
		return Result{Outcome: OutcomeRejected, Reason: RejectNotRegistered}, nil
	}
	if !rec.HasAccounts() {
		return Result{Outcome: OutcomeRejected, Reason: RejectNoAccounts}, nil
	}

	accounts := rec.AccountList()
	c.update = &balanceSession{screenshot: e.newScreenshot(photo), accounts: accounts}
	e.begin(c, WorkflowBalance, StateStart)

	hash, err := e.hasher.Hash(c.update.screenshot.Bytes())
	if err != nil {
		e.log.Warn("screenshot unreadable", e.attrs(c, slog.String("error", err.Error()))...)
		return e.finish(c, OutcomeUnrecognized, text(msgScreenshotUnknown)), nil
	}
	similar, err := match.Accounts(hash, accounts, e.opts.Threshold)
	if err != nil {
		return Result{}, fmt.Errorf("match screenshot: %w", err)
	}
	e.log.Info("screenshot matched", e.attrs(c, slog.Int("similar", len(similar)))...)

	switch {
	case len(similar) == 0:
		return e.finish(c, OutcomeUnrecognized, text(msgScreenshotUnknown)), nil
	case match.SameRelationship(similar):
		return e.applyBalances(ctx, c, similar)
	}

	s := c.update
	s.groups = match.GroupByRelationship(similar)
	keyboard := make([][]Button, 0, len(s.groups)+1)
	for _, g := range s.groups {
		keyboard = append(keyboard, []Button{{Text: strings.Join(g.Names(), ", "), Data: groupChoice(g.Relationship).Data()}})
	}
	keyboard = append(keyboard, []Button{{Text: labelNone, Data: Choice{Kind: ChoiceNone}.Data()}})
	e.transition(c, StateChooseAccountGroup)
	return Result{Replies: []Reply{{Text: msgScreenshotConflict, Keyboard: keyboard}}, Outcome: OutcomePending}, nil
}

func (e *Engine) balanceChoice(ctx context.Context, c *conversation, ch Choice) (Result, bool, error) {
	if c.state != StateChooseAccountGroup {
		return Result{}, false, nil
	}
	switch ch.Kind {
	case ChoiceNone:
		return e.finish(c, OutcomeUnrecognized, text(msgScreenshotUnknown)), true, nil
	case ChoiceGroup:
		for _, g := range c.update.groups {
			if ch.matchesGroup(g.Relationship) {
				e.log.Info("account group chosen", e.attrs(c, slog.String("group", groupLabel(g.Relationship)))...)
				accounts := g.Accounts
				if g.Relationship != nil {
					accounts = e.groupAccounts(c, g.Relationship)
				}
				res, err := e.applyBalances(ctx, c, accounts)
				return res, true, err
			}
		}
	}
	return Result{}, false, nil
}

// groupAccounts returns every registered account of relationship rel, not
// only the ones that matched. The ungrouped bucket is never expanded.
func (e *Engine) groupAccounts(c *conversation, rel *int) []models.AccountDescriptor {
	var out []models.AccountDescriptor
	for _, a := range c.update.accounts {
		if a.InRelationship(rel) {
			out = append(out, a)
		}
	}
	return out
}

// applyBalances extracts the balances of the screenshot once, resolves the
// one nearest to each account's reference point and reconciles it.
func (e *Engine) applyBalances(ctx context.Context, c *conversation, accounts []models.AccountDescriptor) (Result, error) {
	balances, err := e.extractor.Extract(ctx, c.update.screenshot.Bytes())
	if err != nil {
		e.log.Warn("balance extraction failed", e.attrs(c, slog.String("error", err.Error()))...)
		return e.finish(c, OutcomeFailed, text(msgProcessingFailed)), nil
	}
	if len(balances) == 0 {
		return e.finish(c, OutcomeFailed, text(msgNoBalanceInShot)), nil
	}

	updates := make([]AccountUpdate, 0, len(accounts))
	for _, a := range accounts {
		b, err := match.Nearest(balances, a.Image.X, a.Image.Y)
		if err != nil {
			return Result{}, err
		}
		delta, err := e.reconciler.ApplyBalance(ctx, a.ID, b.Price.Amount)
		if err != nil {
			e.log.Warn("firefly unreachable", e.attrs(c, slog.Int64("account", a.ID), slog.String("error", err.Error()))...)
			replies := []Reply{fireflyFailure(err)}
			if len(updates) > 0 {
				replies = append([]Reply{summary(updates)}, replies...)
			}
			res := e.finish(c, OutcomeFailed, replies...)
			res.Updates = updates
			return res, nil
		}
		u := AccountUpdate{AccountID: a.ID, Name: a.Name, Balance: b.Price, Delta: delta}
		switch {
		case delta.IsPositive():
			u.Direction = Up
		case delta.IsNegative():
			u.Direction = Down
		}
		e.log.Info("balance applied",
			e.attrs(c, slog.Int64("account", a.ID), slog.String("balance", b.Price.String()), slog.String("delta", delta.String()))...)
		updates = append(updates, u)
	}
	res := e.finish(c, OutcomeCompleted, summary(updates))
	res.Updates = updates
	return res, nil
}

func summary(updates []AccountUpdate) Reply {
	lines := make([]string, len(updates))
	for i, u := range updates {
		change := unchangedLabel
		marker := directionSteadyMarker
		switch u.Direction {
		case Up:
			marker = directionUpMarker
		case Down:
			marker = directionDownMarker
		}
		if u.Direction != Unchanged {
			change = ocr.Money{Amount: u.Delta, Currency: u.Balance.Currency}.SignedString()
		}
		lines[i] = fmt.Sprintf("%s *%s* %s (%s)", marker, u.Name, u.Balance.String(), change)
	}
	return markdown(msgBalanceUpdated, len(updates), strings.Join(lines, "\n"))
}
