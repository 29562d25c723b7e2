package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"libris-backend/internal/library/audit"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	store *Store
	aud   *audit.Recorder
}

func NewService(db *sql.DB, aud *audit.Recorder) *Service {
	return &Service{store: NewStore(db), aud: aud}
}

func (s *Service) ToggleFavorite(ctx context.Context, memberID, bookID int64) (bool, error) {
	return s.store.ToggleFavorite(ctx, memberID, bookID)
}

func (s *Service) ListFavorites(ctx context.Context, memberID int64) ([]FavoriteBook, error) {
	return s.store.ListFavorites(ctx, memberID)
}

func (s *Service) Rate(ctx context.Context, memberID, bookID int64, stars int) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("%w: stars must be 1..5", ErrInvalidInput)
	}
	return s.store.UpsertRating(ctx, Rating{BookID: bookID, MemberID: memberID, Stars: stars})
}

func (s *Service) MyRating(ctx context.Context, memberID, bookID int64) (int, bool, error) {
	return s.store.GetRating(ctx, memberID, bookID)
}

const maxCommentLen = 2000

func (s *Service) AddComment(ctx context.Context, memberID, bookID int64, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > maxCommentLen {
		return nil, fmt.Errorf("%w: comment must be 1..%d characters", ErrInvalidInput, maxCommentLen)
	}

	c := &Comment{BookID: bookID, MemberID: memberID, Body: body}
	if err := s.store.InsertComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, bookID int64, limit, offset int) ([]Comment, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListComments(ctx, bookID, limit, offset)
}

// DeleteComment は admin によるモデレーション削除
func (s *Service) DeleteComment(ctx context.Context, adminID, commentID int64) error {
	n, err := s.store.DeleteComment(ctx, commentID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.aud.Record(ctx, adminID, fmt.Sprintf("deleted comment %d", commentID))
	return nil
}
