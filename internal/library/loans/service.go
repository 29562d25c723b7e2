package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"libris-backend/internal/library/audit"
	"libris-backend/internal/library/settings"
	"libris-backend/internal/platform/auth"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// AuditLog は業務コミット後に呼ぶ追記専用フック。失敗しても戻さない。
type AuditLog interface {
	Record(ctx context.Context, adminID int64, action string)
}

// Tx は1トランザクション内で使える台帳・在庫操作。
// Lock系は FOR UPDATE で行を押さえ、該当なしは (nil, nil) を返す。
type Tx interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SumMemberHold(ctx context.Context, memberID int64) (int, error)
	LockBook(ctx context.Context, bookID int64) (*BookRow, error)
	AdjustBookQuantity(ctx context.Context, bookID int64, delta int) error
	InsertEntry(ctx context.Context, e *Entry) error
	LockEntry(ctx context.Context, l EntryLock) (*Entry, error)
	MarkActive(ctx context.Context, entryULID string) (bool, error)
	MarkReturned(ctx context.Context, entryID int64, at time.Time, fee float64) error
	MarkCancelled(ctx context.Context, entryID int64, at time.Time) error
	UpdateDueDate(ctx context.Context, entryID int64, due time.Time) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetByULID(ctx context.Context, entryULID string) (*EntryDetail, error)
	List(ctx context.Context, f Filter, p Page) ([]EntryDetail, int64, error)
	ListOverdue(ctx context.Context, today time.Time) ([]OverdueRow, error)
}

// ===== Service本体 =====

type Service struct {
	store Store
	clock Clock
	id    IDGen
	aud   AuditLog
}

func NewService(db *sql.DB, aud *audit.Recorder) *Service {
	return &Service{
		store: NewStore(db),
		clock: realClock{},
		id:    ulidGen{},
		aud:   aud,
	}
}

// 予約（読者）: pending で台帳に載せ、その時点で在庫を引き当てる。
// 在庫カウンタは「貸出可能残」であって棚の実数ではない。
func (s *Service) Reserve(ctx context.Context, p auth.Principal, req ReserveRequest) (*EntryResponse, error) {
	if p.IsAdmin() {
		return nil, ErrForbidden("reservations are for readers")
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalid("quantity must be > 0")
	}
	pickup, err := parseDate(req.PickupOn)
	if err != nil {
		return nil, ErrInvalid("invalid pickup_on format, expected YYYY-MM-DD")
	}
	due, err := parseDate(req.DueOn)
	if err != nil {
		return nil, ErrInvalid("invalid due_on format, expected YYYY-MM-DD")
	}
	today := dateOf(s.clock.Now())
	if pickup.Before(today) {
		return nil, ErrInvalid("pickup date must not be in the past")
	}
	if !due.After(pickup) {
		return nil, ErrInvalid("due date must be after the pickup date")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}
	e := &Entry{
		EntryULID:  idStr,
		BookID:     req.BookID,
		MemberID:   p.ID,
		Quantity:   req.Quantity,
		BorrowedOn: pickup,
		DueOn:      due,
		Status:     StatusPending,
	}

	if err := s.store.InTx(ctx, func(tx Tx) error {
		return s.createEntry(ctx, tx, e)
	}); err != nil {
		return nil, err
	}

	resp := buildEntryResponse(e, "", "")
	return &resp, nil
}

// 窓口貸出（admin）: pending を経由せず直接 active で登録する
func (s *Service) AdminLoan(ctx context.Context, p auth.Principal, req AdminLoanRequest) (*EntryResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalid("quantity must be > 0")
	}
	if req.MemberID <= 0 {
		return nil, ErrInvalid("member_id is required")
	}
	borrowed, err := parseDate(req.BorrowedOn)
	if err != nil {
		return nil, ErrInvalid("invalid borrowed_on format, expected YYYY-MM-DD")
	}
	due, err := parseDate(req.DueOn)
	if err != nil {
		return nil, ErrInvalid("invalid due_on format, expected YYYY-MM-DD")
	}
	if !due.After(borrowed) {
		return nil, ErrInvalid("due date must be after the borrow date")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}
	e := &Entry{
		EntryULID:  idStr,
		BookID:     req.BookID,
		MemberID:   req.MemberID,
		Quantity:   req.Quantity,
		BorrowedOn: borrowed,
		DueOn:      due,
		Status:     StatusActive,
	}

	if err := s.store.InTx(ctx, func(tx Tx) error {
		return s.createEntry(ctx, tx, e)
	}); err != nil {
		return nil, err
	}

	s.aud.Record(ctx, p.ID, fmt.Sprintf("recorded loan %s: book %d x%d to member %d", e.EntryULID, e.BookID, e.Quantity, e.MemberID))
	resp := buildEntryResponse(e, "", "")
	return &resp, nil
}

// createEntry は予約/窓口貸出の共通経路。呼び出し順は
// 上限チェック → 在庫ロック → INSERT → 在庫減算（すべて同一Tx内）。
func (s *Service) createEntry(ctx context.Context, tx Tx, e *Entry) error {
	vals, err := settings.Resolve(ctx, tx.Setting)
	if err != nil {
		return err
	}

	held, err := tx.SumMemberHold(ctx, e.MemberID)
	if err != nil {
		return err
	}
	if held+e.Quantity > vals.MaxBooksPerMember {
		return ErrConflict(fmt.Sprintf("borrow limit exceeded: member holds %d of %d allowed", held, vals.MaxBooksPerMember))
	}

	book, err := tx.LockBook(ctx, e.BookID)
	if err != nil {
		return err
	}
	if book == nil {
		return ErrNotFound("book not found")
	}
	if book.Status != "active" {
		return ErrConflict("book is not available")
	}
	if e.Quantity > book.Quantity {
		return ErrConflict(fmt.Sprintf("insufficient stock (%d left)", book.Quantity))
	}

	if err := tx.InsertEntry(ctx, e); err != nil {
		return err
	}
	return tx.AdjustBookQuantity(ctx, e.BookID, -e.Quantity)
}

// 受取確認（admin）: pending -> active。
// ステータス条件付きUPDATEなので、並行する二重確認は0行更新 = already processed になる。
func (s *Service) ConfirmPickup(ctx context.Context, p auth.Principal, entryULID string) (*ActionResult, error) {
	if err := s.store.InTx(ctx, func(tx Tx) error {
		ok, err := tx.MarkActive(ctx, entryULID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound("loan entry not found or already processed")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.aud.Record(ctx, p.ID, "confirmed pickup for loan "+entryULID)
	return &ActionResult{Success: true, Message: "pickup confirmed"}, nil
}

// 返却（admin）: active -> returned。延滞料を計算し在庫を戻す。
// LockEntry が status=active で絞るため、リトライされた返却は該当なし = 二重加算しない。
func (s *Service) Return(ctx context.Context, p auth.Principal, entryULID string) (*ReturnResult, error) {
	var res *ReturnResult
	if err := s.store.InTx(ctx, func(tx Tx) error {
		vals, err := settings.Resolve(ctx, tx.Setting)
		if err != nil {
			return err
		}

		e, err := tx.LockEntry(ctx, EntryLock{ULID: entryULID, Status: StatusActive})
		if err != nil {
			return err
		}
		if e == nil {
			return ErrNotFound("loan entry not found or already returned")
		}
		if !e.Status.CanTransitionTo(StatusReturned) {
			return ErrInternal("illegal state transition")
		}

		now := s.clock.Now()
		late := daysLate(e.DueOn, now)
		fee := float64(late) * vals.LateFeePerDay * float64(e.Quantity)

		if err := tx.MarkReturned(ctx, e.EntryID, now, fee); err != nil {
			return err
		}
		// 加算前に在庫行をロック（原典と同じ順序）
		if b, err := tx.LockBook(ctx, e.BookID); err != nil {
			return err
		} else if b == nil {
			return ErrInternal("book row missing for loan entry")
		}
		if err := tx.AdjustBookQuantity(ctx, e.BookID, e.Quantity); err != nil {
			return err
		}

		msg := "return recorded"
		if late > 0 {
			msg = fmt.Sprintf("return recorded: %d day(s) late, fee %.0f", late, fee)
		}
		res = &ReturnResult{Success: true, Message: msg, ReturnedAt: now, DaysLate: late, Fee: fee}
		return nil
	}); err != nil {
		return nil, err
	}

	s.aud.Record(ctx, p.ID, "recorded return for loan "+entryULID)
	return res, nil
}

// キャンセル: pending -> cancelled。読者は自分のエントリのみ、adminは誰のでも。
// 引き当て済みの在庫を戻す。キャンセル時刻は returned_at 欄に記録する。
func (s *Service) Cancel(ctx context.Context, p auth.Principal, entryULID string) (*ActionResult, error) {
	lock := EntryLock{ULID: entryULID, Status: StatusPending}
	if !p.IsAdmin() {
		lock.MemberID = p.ID
	}

	if err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEntry(ctx, lock)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrNotFound("reservation not found or already processed")
		}
		if !e.Status.CanTransitionTo(StatusCancelled) {
			return ErrInternal("illegal state transition")
		}

		if err := tx.MarkCancelled(ctx, e.EntryID, s.clock.Now()); err != nil {
			return err
		}
		if b, err := tx.LockBook(ctx, e.BookID); err != nil {
			return err
		} else if b == nil {
			return ErrInternal("book row missing for loan entry")
		}
		return tx.AdjustBookQuantity(ctx, e.BookID, e.Quantity)
	}); err != nil {
		return nil, err
	}

	if p.IsAdmin() {
		s.aud.Record(ctx, p.ID, "cancelled reservation "+entryULID)
	}
	return &ActionResult{Success: true, Message: "reservation cancelled, stock restored"}, nil
}

// 貸出延長（読者）: active かつ期限前のみ。在庫には触れない。
func (s *Service) Renew(ctx context.Context, p auth.Principal, entryULID string) (*RenewResult, error) {
	if p.IsAdmin() {
		return nil, ErrForbidden("renewal is for readers")
	}

	var res *RenewResult
	if err := s.store.InTx(ctx, func(tx Tx) error {
		vals, err := settings.Resolve(ctx, tx.Setting)
		if err != nil {
			return err
		}

		e, err := tx.LockEntry(ctx, EntryLock{ULID: entryULID, Status: StatusActive, MemberID: p.ID})
		if err != nil {
			return err
		}
		if e == nil {
			return ErrNotFound("active loan not found")
		}

		today := dateOf(s.clock.Now())
		if !today.Before(dateOf(e.DueOn)) {
			return ErrConflict("cannot renew on or after the due date")
		}

		newDue := dateOf(e.DueOn).AddDate(0, 0, vals.RenewalExtensionDays)
		if err := tx.UpdateDueDate(ctx, e.EntryID, newDue); err != nil {
			return err
		}

		res = &RenewResult{
			Success:  true,
			Message:  fmt.Sprintf("renewed until %s", newDue.Format(dateLayout)),
			NewDueOn: newDue.Format(dateLayout),
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// ===== 照会系 =====

func (s *Service) GetEntry(ctx context.Context, p auth.Principal, entryULID string) (*EntryResponse, error) {
	d, err := s.store.GetByULID(ctx, entryULID)
	if err != nil {
		return nil, err
	}
	// 他人のエントリは存在ごと隠す
	if d == nil || (!p.IsAdmin() && d.MemberID != p.ID) {
		return nil, ErrNotFound("loan entry not found")
	}
	resp := buildEntryResponse(&d.Entry, d.BookTitle, d.MemberName)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]EntryResponse, int64, error) {
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]EntryResponse, 0, len(items))
	for i := range items {
		out = append(out, buildEntryResponse(&items[i].Entry, items[i].BookTitle, items[i].MemberName))
	}
	return out, total, nil
}

// ListMine は本人の貸出履歴
func (s *Service) ListMine(ctx context.Context, p auth.Principal, page Page) ([]EntryResponse, int64, error) {
	id := p.ID
	return s.List(ctx, Filter{MemberID: &id}, page)
}

func (s *Service) ListOverdue(ctx context.Context) ([]OverdueResponse, error) {
	rows, err := s.store.ListOverdue(ctx, dateOf(s.clock.Now()))
	if err != nil {
		return nil, err
	}
	out := make([]OverdueResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, OverdueResponse{
			EntryULID:  r.EntryULID,
			BookTitle:  r.BookTitle,
			MemberName: r.MemberName,
			Email:      r.Email,
			Quantity:   r.Quantity,
			BorrowedOn: r.BorrowedOn.Format(dateLayout),
			DueOn:      r.DueOn.Format(dateLayout),
			DaysLate:   r.DaysLate,
		})
	}
	return out, nil
}

// ===== ヘルパー =====

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// dateOf は時刻を切り捨ててUTCの日付にする
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysLate は丸一日単位の延滞日数。期限内なら0。
func daysLate(due, at time.Time) int {
	d := dateOf(at).Sub(dateOf(due)) / (24 * time.Hour)
	if d < 0 {
		return 0
	}
	return int(d)
}

func buildEntryResponse(e *Entry, bookTitle, memberName string) EntryResponse {
	resp := EntryResponse{
		EntryULID:  e.EntryULID,
		BookID:     e.BookID,
		BookTitle:  bookTitle,
		MemberID:   e.MemberID,
		MemberName: memberName,
		Quantity:   e.Quantity,
		BorrowedOn: e.BorrowedOn.Format(dateLayout),
		DueOn:      e.DueOn.Format(dateLayout),
		Fee:        e.Fee,
		Status:     e.Status,
	}
	if e.ReturnedAt.Valid {
		t := e.ReturnedAt.Time
		resp.ReturnedAt = &t
	}
	return resp
}
