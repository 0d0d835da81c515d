package match

import "fireshot/models"

// Group is a set of accounts sharing one relationship. A nil Relationship
// holds ungrouped accounts.
type Group struct {
	Relationship *int
	Accounts     []models.AccountDescriptor
}

// Names lists the account names of the group.
func (g Group) Names() []string {
	out := make([]string, len(g.Accounts))
	for i, a := range g.Accounts {
		out[i] = a.Name
	}
	return out
}

// GroupByRelationship partitions accounts by relationship, groups ordered by
// first appearance.
func GroupByRelationship(accounts []models.AccountDescriptor) []Group {
	var groups []Group
	for _, a := range accounts {
		idx := -1
		for i, g := range groups {
			if a.InRelationship(g.Relationship) {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, Group{Relationship: a.Relationship})
			idx = len(groups) - 1
		}
		groups[idx].Accounts = append(groups[idx].Accounts, a)
	}
	return groups
}

// SameRelationship reports whether a non-empty account set belongs to a
// single relationship, which makes a match unambiguous.
func SameRelationship(accounts []models.AccountDescriptor) bool {
	if len(accounts) == 0 {
		return false
	}
	for _, a := range accounts[1:] {
		if !a.InRelationship(accounts[0].Relationship) {
			return false
		}
	}
	return true
}
