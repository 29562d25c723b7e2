package engagement

import (
	"context"
	"database/sql"

	platformdb "libris-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) bookExists(ctx context.Context, tx platformdb.DBTX, bookID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE book_id = ? AND status = 'active'`, bookID).Scan(&n)
	return n > 0, err
}

// ===== favorites =====

// ToggleFavorite は登録済みなら外し、未登録なら足す。戻り値は新しい状態。
func (s *Store) ToggleFavorite(ctx context.Context, memberID, bookID int64) (bool, error) {
	var favorited bool
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		ok, err := s.bookExists(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}

		var n int
		const sel = `SELECT COUNT(*) FROM favorites WHERE member_id = ? AND book_id = ? FOR UPDATE`
		if err := tx.QueryRowContext(ctx, sel, memberID, bookID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE member_id = ? AND book_id = ?`, memberID, bookID)
			favorited = false
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO favorites (member_id, book_id, created_at) VALUES (?, ?, NOW(6))`, memberID, bookID)
		favorited = true
		return err
	})
	return favorited, err
}

func (s *Store) ListFavorites(ctx context.Context, memberID int64) ([]FavoriteBook, error) {
	const q = `
	SELECT b.book_id, b.title, a.name, f.created_at, b.quantity > 0 AND b.status = 'active'
	FROM favorites f
	JOIN books b ON b.book_id = f.book_id
	JOIN authors a ON a.author_id = b.author_id
	WHERE f.member_id = ?
	ORDER BY f.created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FavoriteBook
	for rows.Next() {
		var f FavoriteBook
		if err := rows.Scan(&f.BookID, &f.Title, &f.Author, &f.AddedAt, &f.Available); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ===== ratings =====

// UpsertRating は評価を登録・上書きし、books 側の集計
// (rating_sum, rating_count) を同一Tx内で差分更新する。
func (s *Store) UpsertRating(ctx context.Context, r Rating) error {
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		ok, err := s.bookExists(ctx, tx, r.BookID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}

		var prev int
		const sel = `SELECT stars FROM ratings WHERE member_id = ? AND book_id = ? FOR UPDATE`
		err = tx.QueryRowContext(ctx, sel, r.MemberID, r.BookID).Scan(&prev)
		switch {
		case err == sql.ErrNoRows:
			const ins = `INSERT INTO ratings (member_id, book_id, stars, created_at) VALUES (?, ?, ?, NOW(6))`
			if _, err := tx.ExecContext(ctx, ins, r.MemberID, r.BookID, r.Stars); err != nil {
				return err
			}
			const agg = `UPDATE books SET rating_sum = rating_sum + ?, rating_count = rating_count + 1 WHERE book_id = ?`
			_, err := tx.ExecContext(ctx, agg, r.Stars, r.BookID)
			return err
		case err != nil:
			return err
		}

		if prev == r.Stars {
			return nil
		}
		const upd = `UPDATE ratings SET stars = ? WHERE member_id = ? AND book_id = ?`
		if _, err := tx.ExecContext(ctx, upd, r.Stars, r.MemberID, r.BookID); err != nil {
			return err
		}
		const agg = `UPDATE books SET rating_sum = rating_sum + ? WHERE book_id = ?`
		_, err = tx.ExecContext(ctx, agg, r.Stars-prev, r.BookID)
		return err
	})
}

func (s *Store) GetRating(ctx context.Context, memberID, bookID int64) (int, bool, error) {
	const q = `SELECT stars FROM ratings WHERE member_id = ? AND book_id = ?`
	var stars int
	if err := s.db.QueryRowContext(ctx, q, memberID, bookID).Scan(&stars); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return stars, true, nil
}

// ===== comments =====

func (s *Store) InsertComment(ctx context.Context, c *Comment) error {
	const q = `INSERT INTO comments (book_id, member_id, body, created_at) VALUES (?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, c.BookID, c.MemberID, c.Body)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	c.ID = id
	return nil
}

func (s *Store) ListComments(ctx context.Context, bookID int64, limit, offset int) ([]Comment, int64, error) {
	const q = `
	SELECT c.comment_id, c.book_id, c.member_id, m.full_name, c.body, c.created_at
	FROM comments c
	JOIN members m ON m.member_id = c.member_id
	WHERE c.book_id = ?
	ORDER BY c.created_at DESC
	LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, bookID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.BookID, &c.MemberID, &c.MemberName, &c.Body, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE book_id = ?`, bookID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) DeleteComment(ctx context.Context, commentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE comment_id = ?`, commentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
