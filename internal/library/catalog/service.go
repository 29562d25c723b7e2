package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"libris-backend/internal/library/audit"
)

type Service struct {
	store *Store
	aud   *audit.Recorder
}

func NewService(db *sql.DB, aud *audit.Recorder) *Service {
	return &Service{store: NewStore(db), aud: aud}
}

func (s *Service) Get(ctx context.Context, id int64, includeHidden bool) (*BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil || (!includeHidden && b.Status != StatusActive) {
		return nil, ErrNotFound("book not found")
	}
	resp := toBookResponse(b)
	return &resp, nil
}

func (s *Service) Search(ctx context.Context, f Filter, p Page) ([]BookResponse, int64, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	items, total, err := s.store.Search(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BookResponse, 0, len(items))
	for i := range items {
		out = append(out, toBookResponse(&items[i]))
	}
	return out, total, nil
}

func (s *Service) ListAuthors(ctx context.Context) ([]Ref, error) { return s.store.ListAuthors(ctx) }
func (s *Service) ListGenres(ctx context.Context) ([]Ref, error)  { return s.store.ListGenres(ctx) }

// Create は書籍を登録する。スラッグはタイトルから生成し、衝突時は連番を付ける。
func (s *Service) Create(ctx context.Context, adminID int64, req BookRequest) (*BookResponse, error) {
	if err := validateBookRequest(req); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, req.Title)
	if err != nil {
		return nil, err
	}

	b := &Book{
		Title:       strings.TrimSpace(req.Title),
		Slug:        slug,
		AuthorName:  strings.TrimSpace(req.Author),
		GenreName:   strings.TrimSpace(req.Genre),
		Description: strings.TrimSpace(req.Description),
		Quantity:    req.Quantity,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}

	s.aud.Record(ctx, adminID, fmt.Sprintf("added book %d (%s)", b.ID, b.Title))
	resp := toBookResponse(b)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, adminID, id int64, req BookRequest) error {
	if err := validateBookRequest(req); err != nil {
		return err
	}

	b := &Book{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		AuthorName:  strings.TrimSpace(req.Author),
		GenreName:   strings.TrimSpace(req.Genre),
		Description: strings.TrimSpace(req.Description),
		Quantity:    req.Quantity,
	}
	n, err := s.store.Update(ctx, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound("book not found")
	}

	s.aud.Record(ctx, adminID, fmt.Sprintf("updated book %d (%s)", id, b.Title))
	return nil
}

// Hide は書籍を一覧から外す（論理削除）。
// 未完了の貸出・予約が残っている間は外せない。
func (s *Service) Hide(ctx context.Context, adminID, id int64) error {
	n, err := s.store.CountOutstanding(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict(fmt.Sprintf("book has %d outstanding loan(s)", n))
	}

	affected, err := s.store.SetStatus(ctx, id, StatusHidden)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound("book not found")
	}

	s.aud.Record(ctx, adminID, fmt.Sprintf("hid book %d", id))
	return nil
}

func (s *Service) Restore(ctx context.Context, adminID, id int64) error {
	affected, err := s.store.SetStatus(ctx, id, StatusActive)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound("book not found")
	}

	s.aud.Record(ctx, adminID, fmt.Sprintf("restored book %d", id))
	return nil
}

func validateBookRequest(req BookRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return ErrInvalid("title is required")
	}
	if strings.TrimSpace(req.Author) == "" {
		return ErrInvalid("author is required")
	}
	if strings.TrimSpace(req.Genre) == "" {
		return ErrInvalid("genre is required")
	}
	if req.Quantity < 0 {
		return ErrInvalid("quantity must be >= 0")
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "book"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := s.store.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
