package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Member struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Role         string // "reader" | "admin"
	Status       string // "active" | "locked"
	CreatedAt    time.Time
}

type MemberStore interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	Create(ctx context.Context, m *Member) error
	List(ctx context.Context, keyword string, limit, offset int) ([]Member, int64, error)
	UpdateProfile(ctx context.Context, id int64, fullName, email string) (int64, error)
	SetStatus(ctx context.Context, id int64, status string) (int64, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) MemberStore {
	return &Store{db: db}
}

const memberCols = `member_id, full_name, email, password_hash, role, status, created_at`

func scanMember(row *sql.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.FullName, &m.Email, &m.PasswordHash, &m.Role, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Member, error) {
	const q = `SELECT ` + memberCols + ` FROM members WHERE member_id = ? LIMIT 1`
	return scanMember(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Member, error) {
	const q = `SELECT ` + memberCols + ` FROM members WHERE email = ? LIMIT 1`
	return scanMember(s.db.QueryRowContext(ctx, q, email))
}

func (s *Store) Create(ctx context.Context, m *Member) error {
	const q = `
INSERT INTO members (full_name, email, password_hash, role, status, created_at)
VALUES (?, ?, ?, ?, ?, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, m.FullName, m.Email, m.PasswordHash, m.Role, m.Status)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.ID = id
	return nil
}

func (s *Store) List(ctx context.Context, keyword string, limit, offset int) ([]Member, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + memberCols + ` FROM members WHERE 1=1`)
	args := []any{}
	if keyword != "" {
		sb.WriteString(` AND (full_name LIKE ? OR email LIKE ?)`)
		kw := "%" + keyword + "%"
		args = append(args, kw, kw)
	}
	sb.WriteString(` ORDER BY full_name ASC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.Email, &m.PasswordHash, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := `SELECT COUNT(*) FROM members WHERE 1=1`
	cargs := []any{}
	if keyword != "" {
		cq += ` AND (full_name LIKE ? OR email LIKE ?)`
		kw := "%" + keyword + "%"
		cargs = append(cargs, kw, kw)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id int64, fullName, email string) (int64, error) {
	const q = `UPDATE members SET full_name = ?, email = ? WHERE member_id = ?`
	res, err := s.db.ExecContext(ctx, q, fullName, email, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SetStatus(ctx context.Context, id int64, status string) (int64, error) {
	const q = `UPDATE members SET status = ? WHERE member_id = ?`
	res, err := s.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SetPasswordHash(ctx context.Context, id int64, hash string) (int64, error) {
	const q = `UPDATE members SET password_hash = ? WHERE member_id = ?`
	res, err := s.db.ExecContext(ctx, q, hash, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
