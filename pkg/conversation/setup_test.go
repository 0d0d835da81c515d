package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"fireshot/models"
	"fireshot/pkg/firefly"
	"fireshot/pkg/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRegistersFirstAccount(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0)

	res := h.send(command(CommandSetup))
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, WorkflowSetup, res.Workflow)
	assert.NotEmpty(t, res.Session)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, []string{"Checking", "Savings", "Card"}, buttonTexts(res.Replies[0]))
	assert.Equal(t, "acct:2", res.Replies[0].Keyboard[1][0].Data)

	res = h.send(pressAccount(2))
	assert.Equal(t, StateCaptureExample, h.state())
	assert.Contains(t, res.Replies[0].Text, "*Savings*")

	res = h.send(photo("single"))
	assert.Equal(t, StateConfirm, h.state())
	assert.Contains(t, res.Replies[0].Text, "(10, 80)")
	assert.Equal(t, []string{labelConfirm, labelCancel}, buttonTexts(res.Replies[0]))
	assert.Equal(t, int64(1), h.e.OpenScreenshots())

	res = h.send(pressConfirm)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, WorkflowNone, h.workflow())
	assert.Equal(t, int64(0), h.e.OpenScreenshots())

	rec := h.record()
	require.Contains(t, rec.Accounts, int64(2))
	assert.Equal(t, models.AccountDescriptor{
		ID:           2,
		Name:         "Savings",
		Image:        models.ImageRef{X: 10, Y: 80, Hash: "p:0000000000000000"},
		Relationship: rel(1),
	}, rec.Accounts[2])
	assert.Equal(t, 1, rec.RelationshipSeq)
}

func TestSetupSkipsRegisteredAccounts(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(1, acct(1, "Checking", 40, 0, 0, rel(1)))

	res := h.send(command(CommandSetup))
	assert.Equal(t, []string{"Savings", "Card"}, buttonTexts(res.Replies[0]))

	// an account that was not offered cannot be chosen
	res = h.send(pressAccount(1))
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, StateChooseAccount, h.state())
}

func TestSetupNewRelationshipAfterMax(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0,
		acct(1, "Checking", 40, 0, 0, rel(2)),
		acct(3, "Card", 40, 0, 0, rel(5)),
	)

	h.send(command(CommandSetup))
	h.send(pressAccount(2))
	res := h.send(photo("single"))
	assert.Equal(t, StateConfirm, h.state(), "no similar account, so no relationship prompt")
	assert.NotContains(t, buttonTexts(res.Replies[0]), labelNone)

	h.send(pressConfirm)
	rec := h.record()
	assert.Equal(t, rel(6), rec.Accounts[2].Relationship)
	assert.Equal(t, 6, rec.RelationshipSeq)
}

func TestSetupRelationshipIdsAreNotReused(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	// group 7 was deleted, the counter remembers it
	h.register(7, acct(1, "Checking", 40, 0, 0, rel(3)))

	h.send(command(CommandSetup))
	h.send(pressAccount(2))
	h.send(photo("single"))
	h.send(pressConfirm)
	assert.Equal(t, rel(8), h.record().Accounts[2].Relationship)
}

func TestSetupChoosesBalanceAndJoinsGroup(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(3, acct(1, "Checking", 2, 12, 81, rel(3)))

	h.send(command(CommandSetup))
	h.send(pressAccount(2))

	res := h.send(photo("dashboard"))
	assert.Equal(t, StateSelectBalance, h.state())
	assert.Equal(t, []string{"$100.00", "$250.00"}, buttonTexts(res.Replies[0]))

	res = h.send(pressBalance(1))
	assert.Equal(t, StateChooseRelationship, h.state())
	require.Len(t, res.Replies[0].Keyboard, 2)
	assert.Equal(t, Button{Text: "Checking", Data: "grp:3"}, res.Replies[0].Keyboard[0][0])
	assert.Equal(t, Button{Text: labelNone, Data: "none"}, res.Replies[0].Keyboard[1][0])

	res = h.send(pressGroup(3))
	assert.Equal(t, StateConfirm, h.state())
	assert.Contains(t, res.Replies[0].Text, "(10, 80)")

	res = h.send(pressConfirm)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	rec := h.record()
	assert.Equal(t, rel(3), rec.Accounts[2].Relationship)
	assert.Equal(t, 3, rec.RelationshipSeq)
	assert.Equal(t, models.ImageRef{X: 10, Y: 80, Hash: "p:0000000000000000"}, rec.Accounts[2].Image)
	assert.Equal(t, int64(0), h.e.OpenScreenshots())
}

func TestSetupDeclinesGroup(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(3, acct(1, "Checking", 2, 12, 81, rel(3)))

	h.send(command(CommandSetup))
	h.send(pressAccount(2))
	h.send(photo("single"))
	assert.Equal(t, StateChooseRelationship, h.state())

	// a group that was not offered is ignored
	res := h.send(pressGroup(9))
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	h.send(pressNone)
	h.send(pressConfirm)
	assert.Equal(t, rel(4), h.record().Accounts[2].Relationship)
}

func TestSetupUngroupedSimilarAccountsAreNotOffered(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0, acct(1, "Checking", 2, 12, 81, nil))

	h.send(command(CommandSetup))
	h.send(pressAccount(2))
	h.send(photo("single"))
	assert.Equal(t, StateConfirm, h.state())
}

func TestSetupWaitsForAnotherExample(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0)
	h.send(command(CommandSetup))
	h.send(pressAccount(2))

	res := h.send(photo("blank"))
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, StateCaptureExample, h.state())
	assert.Equal(t, msgExampleNoBalance, res.Replies[0].Text)
	assert.Equal(t, int64(0), h.e.OpenScreenshots())

	res = h.send(photo("garbage"))
	assert.Equal(t, StateCaptureExample, h.state())
	assert.Equal(t, msgExampleUnreadable, res.Replies[0].Text)
	assert.Equal(t, int64(0), h.e.OpenScreenshots())

	h.send(photo("single"))
	assert.Equal(t, StateConfirm, h.state())
	assert.Equal(t, int64(1), h.e.OpenScreenshots())
}

func TestSetupExtractorFailure(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0)
	h.ext.err = errors.New("tesseract crashed")
	h.send(command(CommandSetup))
	h.send(pressAccount(2))

	res := h.send(photo("single"))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, WorkflowNone, h.workflow())
	assert.Equal(t, int64(0), h.e.OpenScreenshots())
}

func TestSetupIncompatibleHashFailsFast(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	legacy := acct(1, "Checking", 0, 0, 0, rel(1))
	legacy.Image.Hash = "a:0000000000000000"
	h.register(1, legacy)
	h.send(command(CommandSetup))
	h.send(pressAccount(2))

	res, err := h.e.Handle(context.Background(), photo("single"))
	assert.ErrorIs(t, err, match.ErrIncompatibleHash)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, WorkflowNone, h.workflow())
	assert.Equal(t, int64(0), h.e.OpenScreenshots())
	assert.Len(t, h.record().Accounts, 1)
}

func TestSetupFireflyUnreachable(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0)
	h.dir.err = &firefly.Error{Op: "list accounts", Reason: "connection refused"}

	res := h.send(command(CommandSetup))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "I cannot connect to Firefly III, reason: connection refused", res.Replies[0].Text)
	assert.Equal(t, WorkflowNone, h.workflow())
}

func TestSetupRejections(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	res := h.send(command(CommandSetup))
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, RejectNotRegistered, res.Reason)

	h.register(0,
		acct(1, "Checking", 40, 0, 0, rel(1)),
		acct(2, "Savings", 40, 0, 0, rel(1)),
		acct(3, "Card", 40, 0, 0, rel(1)),
	)
	res = h.send(command(CommandSetup))
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, RejectNoCandidates, res.Reason)
	assert.Equal(t, WorkflowNone, h.workflow())
}

// setupPaths reaches every setup state. A similar account in group 1 exists
// so the relationship prompt is reachable.
var setupPaths = []struct {
	state  State
	events []Event
}{
	{StateChooseAccount, []Event{command(CommandSetup)}},
	{StateCaptureExample, []Event{command(CommandSetup), pressAccount(2)}},
	{StateSelectBalance, []Event{command(CommandSetup), pressAccount(2), photo("dashboard")}},
	{StateChooseRelationship, []Event{command(CommandSetup), pressAccount(2), photo("single")}},
	{StateConfirm, []Event{command(CommandSetup), pressAccount(2), photo("single"), pressNone}},
}

func TestSetupCancelFromEveryState(t *testing.T) {
	for _, p := range setupPaths {
		t.Run(p.state.String(), func(t *testing.T) {
			h := newHarness(t, 10, time.Minute)
			h.register(1, acct(1, "Checking", 2, 12, 81, rel(1)))
			before := h.record()
			for _, ev := range p.events {
				h.send(ev)
			}
			require.Equal(t, p.state, h.state())

			res := h.send(command(CommandCancel))
			assert.Equal(t, OutcomeCancelled, res.Outcome)
			assert.Equal(t, msgSetupCanceled, res.Replies[0].Text)
			assert.Equal(t, WorkflowNone, h.workflow())
			assert.Equal(t, int64(0), h.e.OpenScreenshots())
			assert.Equal(t, before, h.record())

			ended, ok := h.lastEnded()
			require.True(t, ok)
			assert.Equal(t, OutcomeCancelled, ended.Outcome)
			assert.Equal(t, p.state, ended.State)
		})
	}
}

func TestSetupCancelButton(t *testing.T) {
	h := newHarness(t, 10, time.Minute)
	h.register(0)
	h.send(command(CommandSetup))
	h.send(pressAccount(2))
	h.send(photo("single"))
	before := h.record()

	res := h.send(pressCancel)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, int64(0), h.e.OpenScreenshots())
	assert.Equal(t, before, h.record())
}

func TestSetupTimeoutFromEveryState(t *testing.T) {
	for _, p := range setupPaths {
		t.Run(p.state.String(), func(t *testing.T) {
			h := newHarness(t, 10, 200*time.Millisecond)
			h.register(1, acct(1, "Checking", 2, 12, 81, rel(1)))
			before := h.record()
			for _, ev := range p.events {
				h.send(ev)
			}
			require.Equal(t, p.state, h.state())

			assert.Eventually(t, func() bool { return h.workflow() == WorkflowNone }, 3*time.Second, 10*time.Millisecond)
			ended, ok := h.lastEnded()
			require.True(t, ok)
			assert.Equal(t, OutcomeTimedOut, ended.Outcome)
			assert.Equal(t, WorkflowSetup, ended.Workflow)
			assert.Equal(t, p.state, ended.State)
			assert.Equal(t, msgOperationTimedOut, ended.Replies[0].Text)
			assert.Equal(t, int64(0), h.e.OpenScreenshots())
			assert.Equal(t, before, h.record())
		})
	}
}
