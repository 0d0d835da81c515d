package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"fireshot/models"
	"fireshot/pkg/match"
)

func (e *Engine) startManage(ctx context.Context, c *conversation) (Result, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	if !rec.found {
		return Result{Replies: []Reply{text(msgNotRegistered)}, Outcome: OutcomeRejected, Reason: RejectNotRegistered}, nil
	}
	e.begin(c, WorkflowManage, StateMenu)
	menu := func(label string, a MenuAction) Button {
		return Button{Text: label, Data: Choice{Kind: ChoiceMenu, Value: int64(a)}.Data()}
	}
	reply := markdown(msgMenu)
	reply.Keyboard = [][]Button{
		{menu(labelMenuReset, MenuReset)},
		{menu(labelMenuDelete, MenuDeleteAccount), menu(labelMenuDeleteGroup, MenuDeleteRelationship)},
		{menu(labelMenuList, MenuList), menu(labelMenuRaw, MenuRaw)},
	}
	return Result{Replies: []Reply{reply}, Outcome: OutcomePending}, nil
}

func (e *Engine) manageChoice(ctx context.Context, c *conversation, ch Choice) (Result, bool, error) {
	switch {
	case c.state == StateMenu && ch.Kind == ChoiceMenu:
		return e.menuAction(ctx, c, MenuAction(ch.Value))
	case (c.state == StateDeleteAccount || c.state == StateDeleteRelationship) && ch.Kind == ChoiceCancel:
		e.log.Info("deletion canceled", e.attrs(c)...)
		return e.finish(c, OutcomeCancelled, text(msgOperationCanceled)), true, nil
	case c.state == StateDeleteAccount && ch.Kind == ChoiceDelete:
		res, err := e.deleteAccount(ctx, c, ch.Value)
		return res, true, err
	case c.state == StateDeleteRelationship && ch.Kind == ChoiceGroup:
		res, err := e.deleteRelationship(ctx, c, ch)
		return res, true, err
	}
	return Result{}, false, nil
}

func (e *Engine) menuAction(ctx context.Context, c *conversation, a MenuAction) (Result, bool, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, true, err
	}
	e.log.Info("menu option chosen", e.attrs(c, slog.Int64("option", int64(a)))...)

	switch a {
	case MenuRaw:
		b, err := json.MarshalIndent(rec.UserRecord, "", "  ")
		if err != nil {
			return Result{}, true, fmt.Errorf("encode user %d: %w", c.userID, err)
		}
		return e.finish(c, OutcomeCompleted, markdown("```\n%s\n```", b)), true, nil
	case MenuList, MenuDeleteAccount, MenuDeleteRelationship, MenuReset:
	default:
		return Result{}, false, nil
	}

	if res, ok := e.requireAccounts(c, rec); !ok {
		return res, true, nil
	}
	switch a {
	case MenuList:
		var groups [][]models.AccountDescriptor
		for _, g := range match.GroupByRelationship(rec.AccountList()) {
			groups = append(groups, g.Accounts)
		}
		return e.finish(c, OutcomeCompleted, markdown("%s", listAccounts(groups))), true, nil
	case MenuDeleteAccount:
		keyboard := make([][]Button, 0, len(rec.Accounts)+1)
		for _, acc := range rec.AccountList() {
			keyboard = append(keyboard, []Button{{Text: acc.Name, Data: Choice{Kind: ChoiceDelete, Value: acc.ID}.Data()}})
		}
		keyboard = append(keyboard, []Button{{Text: labelCancel, Data: Choice{Kind: ChoiceCancel}.Data()}})
		e.transition(c, StateDeleteAccount)
		return Result{Replies: []Reply{{Text: msgChooseDelete, Keyboard: keyboard}}, Outcome: OutcomePending}, true, nil
	case MenuDeleteRelationship:
		groups := match.GroupByRelationship(rec.AccountList())
		keyboard := make([][]Button, 0, len(groups)+1)
		for _, g := range groups {
			keyboard = append(keyboard, []Button{{Text: strings.Join(g.Names(), ", "), Data: groupChoice(g.Relationship).Data()}})
		}
		keyboard = append(keyboard, []Button{{Text: labelCancel, Data: Choice{Kind: ChoiceCancel}.Data()}})
		e.transition(c, StateDeleteRelationship)
		reply := markdown(msgChooseGroupDelete)
		reply.Keyboard = keyboard
		return Result{Replies: []Reply{reply}, Outcome: OutcomePending}, true, nil
	default: // MenuReset
		record := rec.Clone()
		record.Accounts = map[int64]models.AccountDescriptor{}
		if err := e.store.Put(ctx, c.userID, record); err != nil {
			return Result{}, true, fmt.Errorf("reset user %d: %w", c.userID, err)
		}
		e.log.Info("accounts reset", e.attrs(c)...)
		return e.finish(c, OutcomeCompleted, text(msgAccountsReset)), true, nil
	}
}

func (e *Engine) deleteAccount(ctx context.Context, c *conversation, id int64) (Result, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	record := rec.Clone()
	acc, ok := record.Accounts[id]
	if !ok {
		return e.finish(c, OutcomeCancelled, text(msgOperationCanceled)), nil
	}
	delete(record.Accounts, id)
	if err := e.store.Put(ctx, c.userID, record); err != nil {
		return Result{}, fmt.Errorf("delete account %d: %w", id, err)
	}
	e.log.Info("account deleted", e.attrs(c, slog.Int64("account", id))...)
	return e.finish(c, OutcomeCompleted, markdown(msgAccountDeleted, acc.ID, acc.Name)), nil
}

// deleteRelationship removes every account of the chosen group.
func (e *Engine) deleteRelationship(ctx context.Context, c *conversation, ch Choice) (Result, error) {
	rec, err := e.loadRecord(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	record := rec.Clone()
	var (
		n   int
		rel *int
	)
	for id, acc := range record.Accounts {
		if ch.matchesGroup(acc.Relationship) {
			rel = acc.Relationship
			delete(record.Accounts, id)
			n++
		}
	}
	if n == 0 {
		return e.finish(c, OutcomeCancelled, text(msgOperationCanceled)), nil
	}
	if err := e.store.Put(ctx, c.userID, record); err != nil {
		return Result{}, fmt.Errorf("delete group %s: %w", groupLabel(rel), err)
	}
	e.log.Info("relationship deleted", e.attrs(c, slog.String("group", groupLabel(rel)), slog.Int("accounts", n))...)
	return e.finish(c, OutcomeCompleted, text(msgGroupDeleted, n, groupLabel(rel))), nil
}
