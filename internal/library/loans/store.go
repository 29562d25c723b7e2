package loans

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"libris-backend/internal/library/settings"
	platformdb "libris-backend/internal/platform/db"
)

type sqlStore struct{ db *sql.DB }

func NewStore(db *sql.DB) Store { return &sqlStore{db: db} }

func (s *sqlStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, q platformdb.DBTX) error {
		return fn(&sqlTx{q: q})
	})
}

// ===== Tx実装 =====

type sqlTx struct{ q platformdb.DBTX }

func (t *sqlTx) Setting(ctx context.Context, key string) (string, bool, error) {
	return settings.Get(ctx, t.q, key)
}

// pending + active の保有冊数合計。上限判定のため FOR UPDATE で読む。
func (t *sqlTx) SumMemberHold(ctx context.Context, memberID int64) (int, error) {
	const q = `
	SELECT COALESCE(SUM(quantity),0) FROM loan_entries
	WHERE member_id = ? AND status IN ('pending','active') FOR UPDATE`
	var sum int
	if err := t.q.QueryRowContext(ctx, q, memberID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (t *sqlTx) LockBook(ctx context.Context, bookID int64) (*BookRow, error) {
	const q = `SELECT book_id, quantity, status FROM books WHERE book_id = ? FOR UPDATE`
	var b BookRow
	if err := t.q.QueryRowContext(ctx, q, bookID).Scan(&b.BookID, &b.Quantity, &b.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (t *sqlTx) AdjustBookQuantity(ctx context.Context, bookID int64, delta int) error {
	const q = `UPDATE books SET quantity = quantity + ? WHERE book_id = ?`
	res, err := t.q.ExecContext(ctx, q, delta, bookID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to update books.quantity")
	}
	return nil
}

func (t *sqlTx) InsertEntry(ctx context.Context, e *Entry) error {
	const q = `
	INSERT INTO loan_entries
	(entry_ulid, book_id, member_id, quantity, borrowed_on, due_on, fee, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, CURRENT_TIMESTAMP)`
	res, err := t.q.ExecContext(ctx, q,
		e.EntryULID, e.BookID, e.MemberID, e.Quantity, e.BorrowedOn, e.DueOn, string(e.Status),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.EntryID = id
	return nil
}

const entryCols = `entry_id, entry_ulid, book_id, member_id, quantity, borrowed_on, due_on, returned_at, fee, status`

func (t *sqlTx) LockEntry(ctx context.Context, l EntryLock) (*Entry, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + entryCols + ` FROM loan_entries WHERE entry_ulid = ? AND status = ?`)
	args := []any{l.ULID, string(l.Status)}
	if l.MemberID != 0 {
		sb.WriteString(` AND member_id = ?`)
		args = append(args, l.MemberID)
	}
	sb.WriteString(` FOR UPDATE`)

	var e Entry
	err := t.q.QueryRowContext(ctx, sb.String(), args...).Scan(
		&e.EntryID, &e.EntryULID, &e.BookID, &e.MemberID, &e.Quantity,
		&e.BorrowedOn, &e.DueOn, &e.ReturnedAt, &e.Fee, &e.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// 同一文中のステータス条件が二重適用のガード（0行更新 = 処理済み）
func (t *sqlTx) MarkActive(ctx context.Context, entryULID string) (bool, error) {
	const q = `UPDATE loan_entries SET status = 'active' WHERE entry_ulid = ? AND status = 'pending'`
	res, err := t.q.ExecContext(ctx, q, entryULID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (t *sqlTx) MarkReturned(ctx context.Context, entryID int64, at time.Time, fee float64) error {
	const q = `UPDATE loan_entries SET status = 'returned', returned_at = ?, fee = ? WHERE entry_id = ?`
	_, err := t.q.ExecContext(ctx, q, at, fee, entryID)
	return err
}

func (t *sqlTx) MarkCancelled(ctx context.Context, entryID int64, at time.Time) error {
	const q = `UPDATE loan_entries SET status = 'cancelled', returned_at = ? WHERE entry_id = ?`
	_, err := t.q.ExecContext(ctx, q, at, entryID)
	return err
}

func (t *sqlTx) UpdateDueDate(ctx context.Context, entryID int64, due time.Time) error {
	const q = `UPDATE loan_entries SET due_on = ? WHERE entry_id = ?`
	_, err := t.q.ExecContext(ctx, q, due, entryID)
	return err
}

// ===== 照会系 =====

func (s *sqlStore) GetByULID(ctx context.Context, entryULID string) (*EntryDetail, error) {
	const q = `
	SELECT l.entry_id, l.entry_ulid, l.book_id, l.member_id, l.quantity,
	       l.borrowed_on, l.due_on, l.returned_at, l.fee, l.status,
	       b.title, m.full_name
	FROM loan_entries l
	JOIN books b ON b.book_id = l.book_id
	JOIN members m ON m.member_id = l.member_id
	WHERE l.entry_ulid = ?`

	var d EntryDetail
	err := s.db.QueryRowContext(ctx, q, entryULID).Scan(
		&d.EntryID, &d.EntryULID, &d.BookID, &d.MemberID, &d.Quantity,
		&d.BorrowedOn, &d.DueOn, &d.ReturnedAt, &d.Fee, &d.Status,
		&d.BookTitle, &d.MemberName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func listFilterSQL(f Filter) (string, []any) {
	sb := strings.Builder{}
	args := []any{}
	if f.MemberID != nil {
		sb.WriteString(` AND l.member_id = ?`)
		args = append(args, *f.MemberID)
	}
	if f.BookID != nil {
		sb.WriteString(` AND l.book_id = ?`)
		args = append(args, *f.BookID)
	}
	if f.Status != nil {
		sb.WriteString(` AND l.status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.From != nil {
		sb.WriteString(` AND l.borrowed_on >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(` AND l.borrowed_on < ?`)
		args = append(args, *f.To)
	}
	return sb.String(), args
}

func (s *sqlStore) List(ctx context.Context, f Filter, p Page) ([]EntryDetail, int64, error) {
	where, args := listFilterSQL(f)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := fmt.Sprintf(`
	SELECT l.entry_id, l.entry_ulid, l.book_id, l.member_id, l.quantity,
	       l.borrowed_on, l.due_on, l.returned_at, l.fee, l.status,
	       b.title, m.full_name
	FROM loan_entries l
	JOIN books b ON b.book_id = l.book_id
	JOIN members m ON m.member_id = l.member_id
	WHERE 1=1%s
	ORDER BY l.created_at %s
	LIMIT ? OFFSET ?`, where, order)

	var out []EntryDetail
	var total int64

	// ページと件数は同じスナップショットから読む
	err := platformdb.ReadOnly(ctx, s.db, func(ctx context.Context, tx platformdb.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d EntryDetail
			if err := rows.Scan(
				&d.EntryID, &d.EntryULID, &d.BookID, &d.MemberID, &d.Quantity,
				&d.BorrowedOn, &d.DueOn, &d.ReturnedAt, &d.Fee, &d.Status,
				&d.BookTitle, &d.MemberName,
			); err != nil {
				return err
			}
			out = append(out, d)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		cq := `SELECT COUNT(*) FROM loan_entries l WHERE 1=1` + where
		return tx.QueryRowContext(ctx, cq, args...).Scan(&total)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *sqlStore) ListOverdue(ctx context.Context, today time.Time) ([]OverdueRow, error) {
	const q = `
	SELECT l.entry_ulid, b.title, m.full_name, m.email, l.quantity,
	       l.borrowed_on, l.due_on, DATEDIFF(?, l.due_on) AS days_late
	FROM loan_entries l
	JOIN books b ON b.book_id = l.book_id
	JOIN members m ON m.member_id = l.member_id
	WHERE l.status = 'active' AND l.due_on < ?
	ORDER BY l.due_on ASC`

	rows, err := s.db.QueryContext(ctx, q, today, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueRow
	for rows.Next() {
		var r OverdueRow
		if err := rows.Scan(&r.EntryULID, &r.BookTitle, &r.MemberName, &r.Email, &r.Quantity, &r.BorrowedOn, &r.DueOn, &r.DaysLate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
