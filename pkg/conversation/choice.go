package conversation

import (
	"fmt"
	"strconv"
	"strings"
)

// ChoiceKind is the closed set of inline keyboard answers.
type ChoiceKind int

const (
	ChoiceAccount ChoiceKind = iota + 1 // ledger account id, setup
	ChoiceBalance                       // index into the offered balances
	ChoiceGroup                         // relationship id, or Ungrouped
	ChoiceNone                          // "none of these"
	ChoiceConfirm
	ChoiceCancel
	ChoiceMenu   // MenuAction
	ChoiceDelete // registered account id
)

var choicePrefix = map[ChoiceKind]string{
	ChoiceAccount: "acct",
	ChoiceBalance: "bal",
	ChoiceGroup:   "grp",
	ChoiceNone:    "none",
	ChoiceConfirm: "ok",
	ChoiceCancel:  "cancel",
	ChoiceMenu:    "menu",
	ChoiceDelete:  "del",
}

// MenuAction is an entry of the manage menu.
type MenuAction int64

const (
	MenuReset MenuAction = iota + 1
	MenuDeleteAccount
	MenuDeleteRelationship
	MenuList
	MenuRaw
)

// Choice is a decoded callback.
type Choice struct {
	Kind      ChoiceKind
	Value     int64
	Ungrouped bool // ChoiceGroup for accounts without a relationship
}

func (k ChoiceKind) hasValue() bool {
	switch k {
	case ChoiceNone, ChoiceConfirm, ChoiceCancel:
		return false
	default:
		return true
	}
}

// Data encodes the choice as callback data, "kind:value" or "kind".
func (c Choice) Data() string {
	p := choicePrefix[c.Kind]
	switch {
	case !c.Kind.hasValue():
		return p
	case c.Kind == ChoiceGroup && c.Ungrouped:
		return p + ":-"
	default:
		return p + ":" + strconv.FormatInt(c.Value, 10)
	}
}

// ParseChoice decodes callback data produced by Choice.Data.
func ParseChoice(data string) (Choice, error) {
	prefix, value, hasValue := strings.Cut(data, ":")
	var kind ChoiceKind
	for k, p := range choicePrefix {
		if p == prefix {
			kind = k
			break
		}
	}
	if kind == 0 || kind.hasValue() != hasValue {
		return Choice{}, fmt.Errorf("%w: %q", ErrBadChoice, data)
	}
	if !hasValue {
		return Choice{Kind: kind}, nil
	}
	if kind == ChoiceGroup && value == "-" {
		return Choice{Kind: kind, Ungrouped: true}, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Choice{}, fmt.Errorf("%w: %q", ErrBadChoice, data)
	}
	return Choice{Kind: kind, Value: v}, nil
}

func groupChoice(rel *int) Choice {
	if rel == nil {
		return Choice{Kind: ChoiceGroup, Ungrouped: true}
	}
	return Choice{Kind: ChoiceGroup, Value: int64(*rel)}
}

// matchesGroup reports whether c selects relationship rel.
func (c Choice) matchesGroup(rel *int) bool {
	if rel == nil {
		return c.Ungrouped
	}
	return !c.Ungrouped && c.Value == int64(*rel)
}
