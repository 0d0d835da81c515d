package store

import (
	"context"
	"os"
	"testing"

	"fireshot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func rel(v int) *int { return &v }

func sampleRecord() models.UserRecord {
	rec := models.NewUserRecord()
	rec.RelationshipSeq = 3
	rec.Accounts[7] = models.AccountDescriptor{ID: 7, Name: "Checking", Image: models.ImageRef{X: 12, Y: 81, Hash: "p:00000000000000ff"}, Relationship: rel(3)}
	rec.Accounts[9] = models.AccountDescriptor{ID: 9, Name: "Savings", Image: models.ImageRef{X: 40, Y: 90, Hash: "p:0000000000000f00"}}
	return rec
}

// exercise runs the behaviour every Store must share.
func exercise(t *testing.T, s Store, userID int64) {
	ctx := context.Background()

	ok, err := s.Exists(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, s.Put(ctx, userID, models.NewUserRecord()))
	ok, err = s.Exists(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.HasAccounts())

	rec := sampleRecord()
	require.NoError(t, s.Put(ctx, userID, rec))
	got, err = s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// full overwrite drops accounts that are no longer present
	delete(rec.Accounts, 7)
	require.NoError(t, s.Put(ctx, userID, rec))
	got, err = s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, got.Accounts, 1)
	assert.Equal(t, 3, got.RelationshipSeq)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory(), 42)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := sampleRecord()
	require.NoError(t, m.Put(ctx, 1, rec))
	rec.Accounts[100] = models.AccountDescriptor{ID: 100}

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	*got.Accounts[7].Relationship = 99
	delete(got.Accounts, 9)

	again, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, again.Accounts, 2)
	assert.Equal(t, 3, *again.Accounts[7].Relationship)
}

func TestFile(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	exercise(t, f, 42)
}

func TestFileWritesJSON(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, f.Put(context.Background(), 5, sampleRecord()))
	b, err := os.ReadFile(f.path(5))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"relationship": 3`)
	assert.Contains(t, string(b), `"hash": "p:00000000000000ff"`)
}

func TestGorm(t *testing.T) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	db, err := gorm.Open(postgres.Open(os.Getenv("DB_DSN")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db, testLogger()))
	const userID = 990001
	t.Cleanup(func() {
		db.Where("user_id = ?", userID).Delete(&models.Account{})
		db.Delete(&models.User{ID: userID})
	})
	db.Where("user_id = ?", userID).Delete(&models.Account{})
	db.Delete(&models.User{ID: userID})
	exercise(t, NewGorm(db), userID)
}
