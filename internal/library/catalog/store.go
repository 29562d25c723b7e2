package catalog

import (
	"context"
	"database/sql"
	"strings"

	platformdb "libris-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const bookCols = `
	b.book_id, b.title, b.slug, b.author_id, a.name, b.genre_id, g.name,
	b.description, b.quantity, b.status, b.rating_sum, b.rating_count, b.created_at`

const bookFrom = `
	FROM books b
	JOIN authors a ON a.author_id = b.author_id
	JOIN genres g ON g.genre_id = b.genre_id`

func scanBook(sc interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	err := sc.Scan(
		&b.ID, &b.Title, &b.Slug, &b.AuthorID, &b.AuthorName, &b.GenreID, &b.GenreName,
		&b.Description, &b.Quantity, &b.Status, &b.RatingSum, &b.RatingCount, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Book, error) {
	const q = `SELECT` + bookCols + bookFrom + ` WHERE b.book_id = ?`
	return scanBook(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	const q = `SELECT COUNT(*) FROM books WHERE slug = ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Search(ctx context.Context, f Filter, p Page) ([]Book, int64, error) {
	sb := strings.Builder{}
	args := []any{}
	sb.WriteString(` WHERE 1=1`)
	if !f.IncludeHidden {
		sb.WriteString(` AND b.status = 'active'`)
	}
	if f.Keyword != "" {
		sb.WriteString(` AND (b.title LIKE ? OR a.name LIKE ?)`)
		kw := "%" + f.Keyword + "%"
		args = append(args, kw, kw)
	}
	if f.AuthorID != nil {
		sb.WriteString(` AND b.author_id = ?`)
		args = append(args, *f.AuthorID)
	}
	if f.GenreID != nil {
		sb.WriteString(` AND b.genre_id = ?`)
		args = append(args, *f.GenreID)
	}
	where := sb.String()

	q := `SELECT` + bookCols + bookFrom + where + ` ORDER BY b.title ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*)` + bookFrom + where
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// getOrCreateRef は authors/genres のような (id, name) 参照テーブルの get-or-create
func getOrCreateRef(ctx context.Context, tx platformdb.DBTX, table, idCol, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT `+idCol+` FROM `+table+` WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Insert は著者・ジャンルを get-or-create しつつ1トランザクションで登録する
func (s *Store) Insert(ctx context.Context, b *Book) error {
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		authorID, err := getOrCreateRef(ctx, tx, "authors", "author_id", b.AuthorName)
		if err != nil {
			return err
		}
		genreID, err := getOrCreateRef(ctx, tx, "genres", "genre_id", b.GenreName)
		if err != nil {
			return err
		}

		const q = `
		INSERT INTO books (title, slug, author_id, genre_id, description, quantity, status, rating_sum, rating_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', 0, 0, NOW(6))`
		res, err := tx.ExecContext(ctx, q, b.Title, b.Slug, authorID, genreID, b.Description, b.Quantity)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		b.ID = id
		b.AuthorID = authorID
		b.GenreID = genreID
		b.Status = StatusActive
		return nil
	})
}

func (s *Store) Update(ctx context.Context, b *Book) (int64, error) {
	var affected int64
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		authorID, err := getOrCreateRef(ctx, tx, "authors", "author_id", b.AuthorName)
		if err != nil {
			return err
		}
		genreID, err := getOrCreateRef(ctx, tx, "genres", "genre_id", b.GenreName)
		if err != nil {
			return err
		}

		const q = `
		UPDATE books SET title = ?, author_id = ?, genre_id = ?, description = ?, quantity = ?
		WHERE book_id = ?`
		res, err := tx.ExecContext(ctx, q, b.Title, authorID, genreID, b.Description, b.Quantity, b.ID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (s *Store) SetStatus(ctx context.Context, id int64, status string) (int64, error) {
	const q = `UPDATE books SET status = ? WHERE book_id = ?`
	res, err := s.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountOutstanding は未完了（pending/active）の台帳エントリ数
func (s *Store) CountOutstanding(ctx context.Context, bookID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM loan_entries WHERE book_id = ? AND status IN ('pending','active')`
	var n int
	if err := s.db.QueryRowContext(ctx, q, bookID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ListAuthors(ctx context.Context) ([]Ref, error) {
	return s.listRef(ctx, `SELECT author_id, name FROM authors ORDER BY name ASC`)
}

func (s *Store) ListGenres(ctx context.Context) ([]Ref, error) {
	return s.listRef(ctx, `SELECT genre_id, name FROM genres ORDER BY name ASC`)
}

type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Store) listRef(ctx context.Context, q string) ([]Ref, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
