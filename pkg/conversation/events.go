package conversation

import (
	"fireshot/pkg/ocr"

	"github.com/shopspring/decimal"
)

// EventKind tells what the user sent.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventPhoto
	EventCallback
	EventText
)

// Commands understood by the engine.
const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandSetup  = "setup"
	CommandManage = "manage"
	CommandCancel = "cancel"
)

// Event is one inbound message from the transport.
type Event struct {
	UserID   int64
	UserName string
	Kind     EventKind
	Command  string // EventCommand, without the leading slash
	Photo    []byte // EventPhoto
	Data     string // EventCallback, see Choice
	Text     string // EventText
}

// Button is an inline keyboard button. Data is an encoded Choice.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Reply is one outbound message.
type Reply struct {
	Text     string     `json:"text"`
	Markdown bool       `json:"markdown,omitempty"`
	Keyboard [][]Button `json:"keyboard,omitempty"`
}

// Workflow identifies a conversation in progress.
type Workflow int

const (
	WorkflowNone Workflow = iota
	WorkflowSetup
	WorkflowBalance
	WorkflowManage
)

func (w Workflow) String() string {
	switch w {
	case WorkflowSetup:
		return "setup"
	case WorkflowBalance:
		return "balance"
	case WorkflowManage:
		return "manage"
	default:
		return "none"
	}
}

// State is the step a workflow waits in.
type State int

const (
	StateIdle State = iota
	StateChooseAccount
	StateCaptureExample
	StateSelectBalance
	StateChooseRelationship
	StateConfirm
	StateStart
	StateChooseAccountGroup
	StateMenu
	StateDeleteAccount
	StateDeleteRelationship
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateChooseAccount:      "choose_account",
	StateCaptureExample:     "capture_example",
	StateSelectBalance:      "select_balance",
	StateChooseRelationship: "choose_relationship",
	StateConfirm:            "confirm",
	StateStart:              "start",
	StateChooseAccountGroup: "choose_account_group",
	StateMenu:               "menu",
	StateDeleteAccount:      "delete_account",
	StateDeleteRelationship: "delete_relationship",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Outcome is the result of handling one event. Everything but OutcomePending
// ends the workflow, if one was running.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeTimedOut
	OutcomeUnrecognized
	OutcomeFailed
	OutcomeRejected
	OutcomeIgnored
)

var outcomeNames = [...]string{
	OutcomePending:      "pending",
	OutcomeCompleted:    "completed",
	OutcomeCancelled:    "cancelled",
	OutcomeTimedOut:     "timed_out",
	OutcomeUnrecognized: "unrecognized",
	OutcomeFailed:       "failed",
	OutcomeRejected:     "rejected",
	OutcomeIgnored:      "ignored",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// RejectReason explains an OutcomeRejected.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectUnauthorized
	RejectNotRegistered
	RejectNoAccounts
	RejectBusy
	RejectNoCandidates
)

func (r RejectReason) String() string {
	switch r {
	case RejectUnauthorized:
		return "unauthorized"
	case RejectNotRegistered:
		return "not_registered"
	case RejectNoAccounts:
		return "no_accounts"
	case RejectBusy:
		return "busy"
	case RejectNoCandidates:
		return "no_candidates"
	default:
		return "none"
	}
}

// Direction of a balance change.
type Direction int

const (
	Unchanged Direction = iota
	Up
	Down
)

// AccountUpdate reports one reconciled account.
type AccountUpdate struct {
	AccountID int64
	Name      string
	Balance   ocr.Money
	Delta     decimal.Decimal
	Direction Direction
}

// Result is what the engine produced for one event.
type Result struct {
	Replies  []Reply
	Outcome  Outcome
	Reason   RejectReason
	Workflow Workflow
	Session  string
	Updates  []AccountUpdate
}

// Ended is reported through Options.OnOutcome whenever a workflow ends,
// including when it times out between events.
type Ended struct {
	UserID   int64
	Workflow Workflow
	State    State
	Session  string
	Outcome  Outcome
	Replies  []Reply // only set for outcomes reached outside Handle
}
