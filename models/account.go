package models

import "time"

// ImageRef locates an account's balance in its reference screenshot.
type ImageRef struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Hash string `json:"hash"` // encoded perceptual hash, see match.EncodeHash
}

// AccountDescriptor is a tracked ledger account registered through setup.
type AccountDescriptor struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Image        ImageRef `json:"image"`
	Relationship *int     `json:"relationship"`
}

// InRelationship reports whether the account belongs to group rel. A nil rel
// matches ungrouped accounts.
func (a AccountDescriptor) InRelationship(rel *int) bool {
	if a.Relationship == nil || rel == nil {
		return a.Relationship == nil && rel == nil
	}
	return *a.Relationship == *rel
}

// Account is the persisted row of an AccountDescriptor.
type Account struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       int64  `gorm:"not null;uniqueIndex:idx_user_account"`
	AccountID    int64  `gorm:"not null;uniqueIndex:idx_user_account"`
	Name         string `gorm:"size:255;not null"`
	X            int    `gorm:"not null"`
	Y            int    `gorm:"not null"`
	Hash         string `gorm:"size:64;not null"`
	Relationship *int   `gorm:"index"`
}

// Descriptor converts the row back to its domain shape.
func (a Account) Descriptor() AccountDescriptor {
	return AccountDescriptor{
		ID:           a.AccountID,
		Name:         a.Name,
		Image:        ImageRef{X: a.X, Y: a.Y, Hash: a.Hash},
		Relationship: a.Relationship,
	}
}

// AccountRow builds the row persisted for descriptor d owned by userID.
func AccountRow(userID int64, d AccountDescriptor) Account {
	return Account{
		UserID:       userID,
		AccountID:    d.ID,
		Name:         d.Name,
		X:            d.Image.X,
		Y:            d.Image.Y,
		Hash:         d.Image.Hash,
		Relationship: d.Relationship,
	}
}
