package models

import (
	"sort"
	"time"
)

// User model. ID is the messaging platform's user id, not an autoincrement.
type User struct {
	ID              int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	RelationshipSeq int       `gorm:"not null;default:0"`
	Accounts        []Account `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// UserRecord is the per-user document read and written by the conversation
// engine. Writes always replace the whole record.
type UserRecord struct {
	Accounts map[int64]AccountDescriptor `json:"accounts"`
	// RelationshipSeq is the last relationship id handed out. It only grows.
	RelationshipSeq int `json:"relationship"`
}

// NewUserRecord returns an empty record.
func NewUserRecord() UserRecord {
	return UserRecord{Accounts: map[int64]AccountDescriptor{}}
}

// HasAccounts reports whether at least one account is registered.
func (r UserRecord) HasAccounts() bool { return len(r.Accounts) > 0 }

// AccountList returns the registered accounts ordered by id.
func (r UserRecord) AccountList() []AccountDescriptor {
	out := make([]AccountDescriptor, 0, len(r.Accounts))
	for _, a := range r.Accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextRelationship allocates a fresh relationship id. Ids are never reused,
// even after the group holding the current maximum has been deleted.
func (r *UserRecord) NextRelationship() int {
	next := r.RelationshipSeq
	for _, a := range r.Accounts {
		if a.Relationship != nil && *a.Relationship > next {
			next = *a.Relationship
		}
	}
	next++
	r.RelationshipSeq = next
	return next
}

// Clone returns a deep copy so callers can mutate without touching the
// original map.
func (r UserRecord) Clone() UserRecord {
	c := UserRecord{Accounts: make(map[int64]AccountDescriptor, len(r.Accounts)), RelationshipSeq: r.RelationshipSeq}
	for id, a := range r.Accounts {
		if a.Relationship != nil {
			rel := *a.Relationship
			a.Relationship = &rel
		}
		c.Accounts[id] = a
	}
	return c
}

// Record converts a loaded user row (with Accounts preloaded) to a UserRecord.
func (u User) Record() UserRecord {
	rec := NewUserRecord()
	rec.RelationshipSeq = u.RelationshipSeq
	for _, a := range u.Accounts {
		rec.Accounts[a.AccountID] = a.Descriptor()
	}
	return rec
}
