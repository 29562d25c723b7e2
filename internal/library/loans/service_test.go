package loans

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/library/settings"
	"libris-backend/internal/platform/auth"
)

// ===== テスト用フェイク =====

// fakeStore は InTx をミューテックスで直列化するインメモリ台帳。
// fn がエラーを返したらスナップショットに巻き戻す（本物のROLLBACK相当）。
type fakeStore struct {
	mu       sync.Mutex
	books    map[int64]*BookRow
	entries  map[string]*Entry
	settings map[string]string
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:    map[int64]*BookRow{},
		entries:  map[string]*Entry{},
		settings: map[string]string{},
	}
}

func (f *fakeStore) snapshot() (map[int64]*BookRow, map[string]*Entry) {
	books := make(map[int64]*BookRow, len(f.books))
	for k, v := range f.books {
		b := *v
		books[k] = &b
	}
	entries := make(map[string]*Entry, len(f.entries))
	for k, v := range f.entries {
		e := *v
		entries[k] = &e
	}
	return books, entries
}

func (f *fakeStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	books, entries := f.snapshot()
	if err := fn(&fakeTx{s: f}); err != nil {
		f.books, f.entries = books, entries
		return err
	}
	return nil
}

func (f *fakeStore) GetByULID(ctx context.Context, ulid string) (*EntryDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ulid]
	if !ok {
		return nil, nil
	}
	return &EntryDetail{Entry: *e}, nil
}

func (f *fakeStore) List(ctx context.Context, flt Filter, p Page) ([]EntryDetail, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []EntryDetail
	for _, e := range f.entries {
		if flt.MemberID != nil && e.MemberID != *flt.MemberID {
			continue
		}
		if flt.Status != nil && e.Status != *flt.Status {
			continue
		}
		out = append(out, EntryDetail{Entry: *e})
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) ListOverdue(ctx context.Context, today time.Time) ([]OverdueRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OverdueRow
	for _, e := range f.entries {
		if e.Status == StatusActive && e.DueOn.Before(today) {
			out = append(out, OverdueRow{
				EntryULID: e.EntryULID,
				Quantity:  e.Quantity,
				DueOn:     e.DueOn,
				DaysLate:  daysLate(e.DueOn, today),
			})
		}
	}
	return out, nil
}

type fakeTx struct{ s *fakeStore }

func (t *fakeTx) Setting(ctx context.Context, key string) (string, bool, error) {
	v, ok := t.s.settings[key]
	return v, ok, nil
}

func (t *fakeTx) SumMemberHold(ctx context.Context, memberID int64) (int, error) {
	sum := 0
	for _, e := range t.s.entries {
		if e.MemberID == memberID && (e.Status == StatusPending || e.Status == StatusActive) {
			sum += e.Quantity
		}
	}
	return sum, nil
}

func (t *fakeTx) LockBook(ctx context.Context, bookID int64) (*BookRow, error) {
	b, ok := t.s.books[bookID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (t *fakeTx) AdjustBookQuantity(ctx context.Context, bookID int64, delta int) error {
	b, ok := t.s.books[bookID]
	if !ok {
		return ErrInternal("failed to update books.quantity")
	}
	b.Quantity += delta
	return nil
}

func (t *fakeTx) InsertEntry(ctx context.Context, e *Entry) error {
	t.s.nextID++
	e.EntryID = t.s.nextID
	cp := *e
	t.s.entries[e.EntryULID] = &cp
	return nil
}

func (t *fakeTx) LockEntry(ctx context.Context, l EntryLock) (*Entry, error) {
	e, ok := t.s.entries[l.ULID]
	if !ok || e.Status != l.Status {
		return nil, nil
	}
	if l.MemberID != 0 && e.MemberID != l.MemberID {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (t *fakeTx) MarkActive(ctx context.Context, ulid string) (bool, error) {
	e, ok := t.s.entries[ulid]
	if !ok || e.Status != StatusPending {
		return false, nil
	}
	e.Status = StatusActive
	return true, nil
}

func (t *fakeTx) find(entryID int64) *Entry {
	for _, e := range t.s.entries {
		if e.EntryID == entryID {
			return e
		}
	}
	return nil
}

func (t *fakeTx) MarkReturned(ctx context.Context, entryID int64, at time.Time, fee float64) error {
	e := t.find(entryID)
	if e == nil {
		return ErrInternal("no such entry")
	}
	e.Status = StatusReturned
	e.ReturnedAt.Valid = true
	e.ReturnedAt.Time = at
	e.Fee = fee
	return nil
}

func (t *fakeTx) MarkCancelled(ctx context.Context, entryID int64, at time.Time) error {
	e := t.find(entryID)
	if e == nil {
		return ErrInternal("no such entry")
	}
	e.Status = StatusCancelled
	e.ReturnedAt.Valid = true
	e.ReturnedAt.Time = at
	return nil
}

func (t *fakeTx) UpdateDueDate(ctx context.Context, entryID int64, due time.Time) error {
	e := t.find(entryID)
	if e == nil {
		return ErrInternal("no such entry")
	}
	e.DueOn = due
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqID struct {
	mu sync.Mutex
	n  int
}

func (g *seqID) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ENTRY%021d", g.n), nil
}

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, adminID int64, action string) {}

// ===== セットアップ =====

var (
	reader  = auth.Principal{ID: 10, Role: auth.RoleReader}
	reader2 = auth.Principal{ID: 11, Role: auth.RoleReader}
	admin   = auth.Principal{ID: 1, Role: auth.RoleAdmin}
)

func newTestService(now time.Time) (*Service, *fakeStore) {
	f := newFakeStore()
	svc := &Service{store: f, clock: fixedClock{t: now}, id: &seqID{}, aud: noopAudit{}}
	return svc, f
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := parseDate(s)
	require.NoError(t, err)
	return d
}

// ===== 予約 =====

func TestReserveHappyPath(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 2, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Equal(t, 2, resp.Quantity)

	// 在庫は予約時点で引き当てられる
	assert.Equal(t, 1, f.books[1].Quantity)
}

func TestReserveValidation(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	cases := []struct {
		name string
		req  ReserveRequest
		code Code
	}{
		{"zero quantity", ReserveRequest{BookID: 1, Quantity: 0, PickupOn: "2024-01-12", DueOn: "2024-01-26"}, CodeInvalidArgument},
		{"negative quantity", ReserveRequest{BookID: 1, Quantity: -1, PickupOn: "2024-01-12", DueOn: "2024-01-26"}, CodeInvalidArgument},
		{"bad pickup format", ReserveRequest{BookID: 1, Quantity: 1, PickupOn: "12/01/2024", DueOn: "2024-01-26"}, CodeInvalidArgument},
		{"pickup in the past", ReserveRequest{BookID: 1, Quantity: 1, PickupOn: "2024-01-09", DueOn: "2024-01-26"}, CodeInvalidArgument},
		{"due not after pickup", ReserveRequest{BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-12"}, CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Reserve(context.Background(), reader, tc.req)
			var api *APIError
			require.ErrorAs(t, err, &api)
			assert.Equal(t, tc.code, api.Code)
		})
	}

	// 在庫は一切動いていない
	assert.Equal(t, 3, f.books[1].Quantity)
}

func TestReserveForbiddenForAdmin(t *testing.T) {
	svc, _ := newTestService(mustDate(t, "2024-01-10"))
	_, err := svc.Reserve(context.Background(), admin, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeForbidden, api.Code)
}

func TestReserveInsufficientStock(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 1, Status: "active"}

	_, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 2, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
	assert.Equal(t, 1, f.books[1].Quantity)
}

func TestReserveHiddenBook(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 5, Status: "hidden"}

	_, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
}

func TestReserveBookNotFound(t *testing.T) {
	svc, _ := newTestService(mustDate(t, "2024-01-10"))
	_, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 99, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
}

func TestBorrowLimit(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 10, Status: "active"}

	// 既定の上限は5。4冊予約済みの状態から2冊は借りられない。
	_, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 4, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 2, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
	assert.Contains(t, api.Message, "holds 4 of 5")

	// ちょうど上限までは可
	_, err = svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	assert.NoError(t, err)
}

func TestBorrowLimitConfigured(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 10, Status: "active"}
	f.settings[settings.KeyMaxBooksPerMember] = "2"

	_, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 3, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
}

// ===== 受取確認 =====

func TestConfirmPickup(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)

	res, err := svc.ConfirmPickup(context.Background(), admin, resp.EntryULID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StatusActive, f.entries[resp.EntryULID].Status)

	// 二重確認は冪等にエラー（状態は変わらない）
	_, err = svc.ConfirmPickup(context.Background(), admin, resp.EntryULID)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
	assert.Equal(t, StatusActive, f.entries[resp.EntryULID].Status)
}

func TestConfirmTerminalEntry(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), reader, resp.EntryULID)
	require.NoError(t, err)

	// cancelled は active に戻せない
	_, err = svc.ConfirmPickup(context.Background(), admin, resp.EntryULID)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
	assert.Equal(t, StatusCancelled, f.entries[resp.EntryULID].Status)
}

// ===== 返却 =====

func TestReturnOnTime(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}
	f.settings[settings.KeyLateFeePerDay] = "5000"

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 2, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)
	_, err = svc.ConfirmPickup(context.Background(), admin, resp.EntryULID)
	require.NoError(t, err)

	res, err := svc.Return(context.Background(), admin, resp.EntryULID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DaysLate)
	assert.Equal(t, 0.0, res.Fee)

	// 在庫が戻る
	assert.Equal(t, 3, f.books[1].Quantity)
	assert.Equal(t, StatusReturned, f.entries[resp.EntryULID].Status)
}

func TestReturnLateFee(t *testing.T) {
	// 期限 2024-01-26、返却日 2024-01-29 → 3日遅れ
	svc, f := newTestService(mustDate(t, "2024-01-29"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 0, Status: "active"}
	f.settings[settings.KeyLateFeePerDay] = "5000"
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 2,
		BorrowedOn: mustDate(t, "2024-01-12"), DueOn: mustDate(t, "2024-01-26"),
		Status: StatusActive,
	}
	f.nextID = 1

	res, err := svc.Return(context.Background(), admin, "E1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.DaysLate)
	// 3日 × 5000/日 × 2冊
	assert.Equal(t, 30000.0, res.Fee)
	assert.Equal(t, 30000.0, f.entries["E1"].Fee)
	assert.Equal(t, 2, f.books[1].Quantity)
}

func TestDoubleReturn(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-20"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 0, Status: "active"}
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: mustDate(t, "2024-01-12"), DueOn: mustDate(t, "2024-01-26"),
		Status: StatusActive,
	}
	f.nextID = 1

	_, err := svc.Return(context.Background(), admin, "E1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.books[1].Quantity)

	// 二重返却は在庫を二重加算しない
	_, err = svc.Return(context.Background(), admin, "E1")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
	assert.Equal(t, 1, f.books[1].Quantity)
}

func TestReturnPendingEntry(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)

	// pending は返却対象にならない
	_, err = svc.Return(context.Background(), admin, resp.EntryULID)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
}

// ===== キャンセル =====

func TestCancelRestoresStock(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 2, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.books[1].Quantity)

	_, err = svc.Cancel(context.Background(), reader, resp.EntryULID)
	require.NoError(t, err)

	assert.Equal(t, 3, f.books[1].Quantity)
	e := f.entries[resp.EntryULID]
	assert.Equal(t, StatusCancelled, e.Status)
	assert.True(t, e.ReturnedAt.Valid) // キャンセル時刻が入る
}

func TestCancelSomeoneElsesReservation(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)

	// 他の読者からは見えない扱い
	_, err = svc.Cancel(context.Background(), reader2, resp.EntryULID)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)

	// admin は誰の予約でもキャンセルできる
	_, err = svc.Cancel(context.Background(), admin, resp.EntryULID)
	assert.NoError(t, err)
}

func TestCancelActiveLoan(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 0, Status: "active"}
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: mustDate(t, "2024-01-05"), DueOn: mustDate(t, "2024-01-26"),
		Status: StatusActive,
	}
	f.nextID = 1

	// 貸出中はキャンセルではなく返却
	_, err := svc.Cancel(context.Background(), reader, "E1")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
}

// ===== 延長 =====

func TestRenew(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-25"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 0, Status: "active"}
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: mustDate(t, "2024-01-12"), DueOn: mustDate(t, "2024-02-01"),
		Status: StatusActive,
	}
	f.nextID = 1

	res, err := svc.Renew(context.Background(), reader, "E1")
	require.NoError(t, err)
	// 既定の延長は7日、起点は現在の期限
	assert.Equal(t, "2024-02-08", res.NewDueOn)
	assert.Equal(t, mustDate(t, "2024-02-08"), f.entries["E1"].DueOn)
}

func TestRenewOnDueDate(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-02-01"))
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: mustDate(t, "2024-01-12"), DueOn: mustDate(t, "2024-02-01"),
		Status: StatusActive,
	}
	f.nextID = 1

	// 期限当日以降は延長不可
	_, err := svc.Renew(context.Background(), reader, "E1")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
	assert.Equal(t, mustDate(t, "2024-02-01"), f.entries["E1"].DueOn)
}

func TestRenewSomeoneElsesLoan(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-25"))
	f.entries["E1"] = &Entry{
		EntryID: 1, EntryULID: "E1", BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: mustDate(t, "2024-01-12"), DueOn: mustDate(t, "2024-02-01"),
		Status: StatusActive,
	}
	f.nextID = 1

	_, err := svc.Renew(context.Background(), reader2, "E1")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
}

// ===== 窓口貸出 =====

func TestAdminLoanIsActiveImmediately(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.AdminLoan(context.Background(), admin, AdminLoanRequest{
		BookID: 1, MemberID: reader.ID, Quantity: 1,
		BorrowedOn: "2024-01-10", DueOn: "2024-01-24",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, resp.Status)
	assert.Equal(t, 2, f.books[1].Quantity)
}

func TestAdminLoanRespectsBorrowLimit(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 10, Status: "active"}

	_, err := svc.AdminLoan(context.Background(), admin, AdminLoanRequest{
		BookID: 1, MemberID: reader.ID, Quantity: 6,
		BorrowedOn: "2024-01-10", DueOn: "2024-01-24",
	})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
}

// ===== 並行性 =====

func TestConcurrentReserveLastUnit(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 1, Status: "active"}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	principals := []auth.Principal{reader, reader2}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(context.Background(), principals[i], ReserveRequest{
				BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			var api *APIError
			require.ErrorAs(t, err, &api)
			assert.Equal(t, CodeConflict, api.Code)
		}
	}
	assert.Equal(t, 1, ok, "exactly one reservation should win the last unit")
	assert.Equal(t, 0, f.books[1].Quantity)
}

// ===== 照会 =====

func TestGetEntryHidesOthers(t *testing.T) {
	svc, f := newTestService(mustDate(t, "2024-01-10"))
	f.books[1] = &BookRow{BookID: 1, Quantity: 3, Status: "active"}

	resp, err := svc.Reserve(context.Background(), reader, ReserveRequest{
		BookID: 1, Quantity: 1, PickupOn: "2024-01-12", DueOn: "2024-01-26",
	})
	require.NoError(t, err)

	_, err = svc.GetEntry(context.Background(), reader, resp.EntryULID)
	assert.NoError(t, err)

	_, err = svc.GetEntry(context.Background(), reader2, resp.EntryULID)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)

	_, err = svc.GetEntry(context.Background(), admin, resp.EntryULID)
	assert.NoError(t, err)
}

// ===== ヘルパー =====

func TestDaysLate(t *testing.T) {
	due := mustDate(t, "2024-01-26")
	assert.Equal(t, 0, daysLate(due, mustDate(t, "2024-01-20")))
	assert.Equal(t, 0, daysLate(due, mustDate(t, "2024-01-26")))
	assert.Equal(t, 1, daysLate(due, mustDate(t, "2024-01-27")))
	assert.Equal(t, 3, daysLate(due, mustDate(t, "2024-01-29")))
	// 時刻は切り捨てて日付単位で数える
	assert.Equal(t, 1, daysLate(due, mustDate(t, "2024-01-27").Add(23*time.Hour)))
}
