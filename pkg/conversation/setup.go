package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fireshot/models"
	"fireshot/pkg/firefly"
	"fireshot/pkg/match"
	"fireshot/pkg/ocr"

	"github.com/corona10/goimagehash"
)

// setupSession accumulates the answers of one setup run.
type setupSession struct {
	offered    []firefly.Account
	chosen     firefly.Account
	screenshot *Screenshot
	hash       *goimagehash.ImageHash
	balances   []ocr.Balance
	balance    ocr.Balance
	similar    []models.AccountDescriptor
	groups     []match.Group
	// relationship stays nil until a group is chosen; confirm allocates one.
	relationship *int
}

func (e *Engine) startSetup(ctx context.Context, c *conversation) (Result, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	if !rec.found {
		e.log.Info("setup before registration", e.attrs(c)...)
		return Result{Replies: []Reply{text(msgNotRegistered)}, Outcome: OutcomeRejected, Reason: RejectNotRegistered}, nil
	}

	accounts, err := e.directory.ListAccounts(ctx, e.opts.AccountType)
	if err != nil {
		e.log.Warn("firefly unreachable", e.attrs(c, slog.String("error", err.Error()))...)
		return Result{Replies: []Reply{fireflyFailure(err)}, Outcome: OutcomeFailed}, nil
	}
	var offered []firefly.Account
	for _, a := range accounts {
		if _, ok := rec.Accounts[a.ID]; !ok {
			offered = append(offered, a)
		}
	}
	e.log.Info("ledger accounts listed", e.attrs(c, slog.Int("total", len(accounts)), slog.Int("offered", len(offered)))...)
	if len(offered) == 0 {
		return Result{Replies: []Reply{text(msgAllRegistered)}, Outcome: OutcomeRejected, Reason: RejectNoCandidates}, nil
	}

	c.setup = &setupSession{offered: offered}
	e.begin(c, WorkflowSetup, StateChooseAccount)
	keyboard := make([][]Button, 0, len(offered))
	for _, a := range offered {
		keyboard = append(keyboard, []Button{{Text: a.Name, Data: Choice{Kind: ChoiceAccount, Value: a.ID}.Data()}})
	}
	return Result{Replies: []Reply{{Text: msgWhichAccount, Keyboard: keyboard}}, Outcome: OutcomePending}, nil
}

// setupChoice handles a button press during setup. handled is false for
// choices that do not belong to the current state.
func (e *Engine) setupChoice(ctx context.Context, c *conversation, ch Choice) (Result, bool, error) {
	s := c.setup
	switch {
	case c.state == StateChooseAccount && ch.Kind == ChoiceAccount:
		for _, a := range s.offered {
			if a.ID == ch.Value {
				s.chosen = a
				e.transition(c, StateCaptureExample)
				return Result{Replies: []Reply{markdown(msgSendExample, a.Name)}, Outcome: OutcomePending}, true, nil
			}
		}
	case c.state == StateSelectBalance && ch.Kind == ChoiceBalance:
		if ch.Value >= 0 && ch.Value < int64(len(s.balances)) {
			s.balance = s.balances[ch.Value]
			e.log.Info("balance selected", e.attrs(c, slog.String("balance", s.balance.Price.String()))...)
			return e.checkRelationships(c), true, nil
		}
	case c.state == StateChooseRelationship && ch.Kind == ChoiceNone:
		return e.requestConfirm(c), true, nil
	case c.state == StateChooseRelationship && ch.Kind == ChoiceGroup:
		for _, g := range s.groups {
			if ch.matchesGroup(g.Relationship) {
				rel := *g.Relationship
				s.relationship = &rel
				e.log.Info("relationship chosen", e.attrs(c, slog.Int("relationship", rel))...)
				return e.requestConfirm(c), true, nil
			}
		}
	case c.state == StateConfirm && ch.Kind == ChoiceConfirm:
		res, err := e.confirmSetup(ctx, c)
		return res, true, err
	case c.state == StateConfirm && ch.Kind == ChoiceCancel:
		return e.finish(c, OutcomeCancelled, text(msgSetupCanceled)), true, nil
	}
	return Result{}, false, nil
}

// setupExample takes the example screenshot of the chosen account.
func (e *Engine) setupExample(ctx context.Context, c *conversation, photo []byte) (Result, error) {
	s := c.setup
	if s.screenshot != nil {
		e.release(c, s.screenshot)
		s.screenshot = nil
	}
	shot := e.newScreenshot(photo)
	s.screenshot = shot

	hash, err := e.hasher.Hash(shot.Bytes())
	if err != nil {
		return e.retryExample(c, msgExampleUnreadable, err), nil
	}
	balances, err := e.extractor.Extract(ctx, shot.Bytes())
	if errors.Is(err, ocr.ErrDecode) {
		return e.retryExample(c, msgExampleUnreadable, err), nil
	}
	if err != nil {
		e.log.Warn("balance extraction failed", e.attrs(c, slog.String("error", err.Error()))...)
		return e.finish(c, OutcomeFailed, text(msgProcessingFailed)), nil
	}

	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	similar, err := match.Accounts(hash, rec.AccountList(), e.opts.Threshold)
	if err != nil {
		return Result{}, fmt.Errorf("match example of account %d: %w", s.chosen.ID, err)
	}
	s.hash, s.similar = hash, similar
	e.log.Info("example screenshot received",
		e.attrs(c, slog.Int("balances", len(balances)), slog.Int("similar", len(similar)))...)

	switch len(balances) {
	case 0:
		return e.retryExample(c, msgExampleNoBalance, nil), nil
	case 1:
		s.balance = balances[0]
		return e.checkRelationships(c), nil
	}
	s.balances = balances
	keyboard := make([][]Button, len(balances))
	for i, b := range balances {
		keyboard[i] = []Button{{Text: b.Price.String(), Data: Choice{Kind: ChoiceBalance, Value: int64(i)}.Data()}}
	}
	e.transition(c, StateSelectBalance)
	reply := markdown(msgExampleChooseBalance, s.chosen.Name)
	reply.Keyboard = keyboard
	return Result{Replies: []Reply{reply}, Outcome: OutcomePending}, nil
}

// retryExample drops the unusable screenshot and waits for another one.
func (e *Engine) retryExample(c *conversation, msg string, cause error) Result {
	attrs := e.attrs(c)
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	e.log.Warn("example screenshot rejected, waiting for another", attrs...)
	e.release(c, c.setup.screenshot)
	c.setup.screenshot = nil
	e.transition(c, StateCaptureExample)
	return Result{Replies: []Reply{text(msg)}, Outcome: OutcomePending}
}

// checkRelationships offers the groups of registered accounts whose
// screenshots look like this one. Ungrouped accounts are not offered.
func (e *Engine) checkRelationships(c *conversation) Result {
	s := c.setup
	s.groups = s.groups[:0]
	for _, g := range match.GroupByRelationship(s.similar) {
		if g.Relationship != nil {
			s.groups = append(s.groups, g)
		}
	}
	if len(s.groups) == 0 {
		return e.requestConfirm(c)
	}
	keyboard := make([][]Button, 0, len(s.groups)+1)
	for _, g := range s.groups {
		keyboard = append(keyboard, []Button{{Text: strings.Join(g.Names(), ", "), Data: groupChoice(g.Relationship).Data()}})
	}
	keyboard = append(keyboard, []Button{{Text: labelNone, Data: Choice{Kind: ChoiceNone}.Data()}})
	e.transition(c, StateChooseRelationship)
	reply := markdown(msgRelationship, s.chosen.Name)
	reply.Keyboard = keyboard
	return Result{Replies: []Reply{reply}, Outcome: OutcomePending}
}

func (e *Engine) requestConfirm(c *conversation) Result {
	s := c.setup
	e.transition(c, StateConfirm)
	reply := markdown(msgSetupConfirm, s.chosen.ID, s.chosen.Name, s.balance.X, s.balance.Y)
	reply.Keyboard = [][]Button{{
		{Text: labelConfirm, Data: Choice{Kind: ChoiceConfirm}.Data()},
		{Text: labelCancel, Data: Choice{Kind: ChoiceCancel}.Data()},
	}}
	return Result{Replies: []Reply{reply}, Outcome: OutcomePending}
}

// confirmSetup persists the new account. It is the only write of setup.
func (e *Engine) confirmSetup(ctx context.Context, c *conversation) (Result, error) {
	s := c.setup
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	if !rec.found {
		rec.UserRecord = models.NewUserRecord()
	}
	record := rec.Clone()

	var rel int
	if s.relationship == nil {
		rel = record.NextRelationship()
	} else {
		rel = *s.relationship
		if rel > record.RelationshipSeq {
			record.RelationshipSeq = rel
		}
	}
	record.Accounts[s.chosen.ID] = models.AccountDescriptor{
		ID:   s.chosen.ID,
		Name: s.chosen.Name,
		Image: models.ImageRef{
			X:    s.balance.X,
			Y:    s.balance.Y,
			Hash: match.EncodeHash(s.hash),
		},
		Relationship: &rel,
	}
	if err := e.store.Put(ctx, c.userID, record); err != nil {
		return Result{}, fmt.Errorf("save account %d: %w", s.chosen.ID, err)
	}
	e.log.Info("account registered",
		e.attrs(c, slog.Int64("account", s.chosen.ID), slog.Int("relationship", rel))...)
	return e.finish(c, OutcomeCompleted, text(msgSetupComplete)), nil
}
