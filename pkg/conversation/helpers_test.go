package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fireshot/models"
	"fireshot/pkg/firefly"
	"fireshot/pkg/match"
	"fireshot/pkg/ocr"
	"fireshot/pkg/store"

	"github.com/corona10/goimagehash"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const uid = int64(42)

// Photos are identified by their bytes. All known photos hash to zero except
// "unknown"; stored accounts use bitsN(d) to sit at distance d.
var photoHashes = map[string]uint64{
	"dashboard": 0,
	"single":    0,
	"blank":     0,
	"unknown":   ^uint64(0),
}

func bitsN(d int) uint64 { return (uint64(1) << uint(d)) - 1 }

func hashAt(d int) string {
	return match.EncodeHash(goimagehash.NewImageHash(bitsN(d), goimagehash.PHash))
}

func usd(amount string) ocr.Money {
	return ocr.Money{Amount: decimal.RequireFromString(amount), Currency: "USD"}
}

var photoBalances = map[string][]ocr.Balance{
	"dashboard": {
		{X: 10, Y: 50, Price: usd("100.00")},
		{X: 10, Y: 80, Price: usd("250.00")},
	},
	"single":  {{X: 10, Y: 80, Price: usd("250.00")}},
	"unknown": {{X: 1, Y: 1, Price: usd("1.00")}},
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (*goimagehash.ImageHash, error) {
	v, ok := photoHashes[string(data)]
	if !ok {
		return nil, errors.New("image: unknown format")
	}
	return goimagehash.NewImageHash(v, goimagehash.PHash), nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, data []byte) ([]ocr.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return photoBalances[string(data)], nil
}

type fakeDirectory struct {
	accounts []firefly.Account
	err      error
}

func (f *fakeDirectory) ListAccounts(_ context.Context, accountType string) ([]firefly.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	current map[int64]decimal.Decimal
	applied []int64
	failOn  int64
	err     error
}

func (f *fakeLedger) ApplyBalance(_ context.Context, id int64, observed decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failOn {
		return decimal.Zero, f.err
	}
	diff := observed.Sub(f.current[id])
	f.current[id] = observed
	f.applied = append(f.applied, id)
	return diff, nil
}

type harness struct {
	t      *testing.T
	e      *Engine
	st     *store.Memory
	dir    *fakeDirectory
	ext    *fakeExtractor
	ledger *fakeLedger

	mu    sync.Mutex
	ended []Ended
}

func newHarness(t *testing.T, threshold int, timeout time.Duration) *harness {
	dir := &fakeDirectory{accounts: []firefly.Account{
		{ID: 1, Name: "Checking", CurrentBalance: decimal.RequireFromString("100"), Currency: "USD"},
		{ID: 2, Name: "Savings", CurrentBalance: decimal.RequireFromString("300"), Currency: "USD"},
		{ID: 3, Name: "Card", CurrentBalance: decimal.Zero, Currency: "USD"},
	}}
	ledger := &fakeLedger{current: map[int64]decimal.Decimal{
		1: decimal.RequireFromString("100"),
		2: decimal.RequireFromString("300"),
		3: decimal.Zero,
	}}
	h := &harness{t: t, st: store.NewMemory(), dir: dir, ext: &fakeExtractor{}, ledger: ledger}
	h.e = New(h.st, h.dir, h.ledger, h.ext, fakeHasher{}, Options{
		Threshold: threshold,
		Timeout:   timeout,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnOutcome: func(e Ended) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.ended = append(h.ended, e)
		},
	})
	return h
}

// register stores a user record holding accounts.
func (h *harness) register(seq int, accounts ...models.AccountDescriptor) {
	rec := models.NewUserRecord()
	rec.RelationshipSeq = seq
	for _, a := range accounts {
		rec.Accounts[a.ID] = a
	}
	require.NoError(h.t, h.st.Put(context.Background(), uid, rec))
}

func (h *harness) record() models.UserRecord {
	rec, err := h.st.Get(context.Background(), uid)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) send(ev Event) Result {
	h.t.Helper()
	res, err := h.e.Handle(context.Background(), ev)
	require.NoError(h.t, err)
	return res
}

func (h *harness) lastEnded() (Ended, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ended) == 0 {
		return Ended{}, false
	}
	return h.ended[len(h.ended)-1], true
}

func (h *harness) state() State {
	_, s := h.e.Active(uid)
	return s
}

func (h *harness) workflow() Workflow {
	w, _ := h.e.Active(uid)
	return w
}

func rel(v int) *int { return &v }

func acct(id int64, name string, d int, x, y int, r *int) models.AccountDescriptor {
	return models.AccountDescriptor{ID: id, Name: name, Image: models.ImageRef{X: x, Y: y, Hash: hashAt(d)}, Relationship: r}
}

func command(name string) Event { return Event{UserID: uid, Kind: EventCommand, Command: name} }

func photo(name string) Event { return Event{UserID: uid, Kind: EventPhoto, Photo: []byte(name)} }

func press(c Choice) Event { return Event{UserID: uid, Kind: EventCallback, Data: c.Data()} }

func buttonTexts(r Reply) []string {
	var out []string
	for _, row := range r.Keyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

var (
	pressNone    = press(Choice{Kind: ChoiceNone})
	pressConfirm = press(Choice{Kind: ChoiceConfirm})
	pressCancel  = press(Choice{Kind: ChoiceCancel})
)

func pressAccount(id int64) Event  { return press(Choice{Kind: ChoiceAccount, Value: id}) }
func pressBalance(i int64) Event   { return press(Choice{Kind: ChoiceBalance, Value: i}) }
func pressGroup(r int) Event       { return press(Choice{Kind: ChoiceGroup, Value: int64(r)}) }
func pressMenu(a MenuAction) Event { return press(Choice{Kind: ChoiceMenu, Value: int64(a)}) }
func pressDelete(id int64) Event   { return press(Choice{Kind: ChoiceDelete, Value: id}) }
