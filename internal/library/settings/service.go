package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"libris-backend/internal/library/audit"
	platformdb "libris-backend/internal/platform/db"
)

var (
	ErrUnknownKey   = errors.New("unknown setting key")
	ErrInvalidValue = errors.New("invalid setting value")
)

type Service struct {
	db    *sql.DB
	store *Store
	aud   *audit.Recorder
}

func NewService(db *sql.DB, aud *audit.Recorder) *Service {
	return &Service{db: db, store: NewStore(db), aud: aud}
}

// List は保存済みの生値と、既定値を適用した実効値の両方を返す
func (s *Service) List(ctx context.Context) (map[string]string, Values, error) {
	raw, err := s.store.List(ctx)
	if err != nil {
		return nil, Values{}, err
	}
	get := func(ctx context.Context, key string) (string, bool, error) {
		v, ok := raw[key]
		return v, ok, nil
	}
	vals, err := Resolve(ctx, get)
	if err != nil {
		return nil, Values{}, err
	}
	return raw, vals, nil
}

// Update は既知キーのみ受け付け、非負整数の文字列表現だけを保存する。
// 10進整数以外（小数・符号付き含む）は弾く。
func (s *Service) Update(ctx context.Context, adminID int64, updates map[string]string) error {
	for k, v := range updates {
		switch k {
		case KeyLateFeePerDay, KeyMaxBooksPerMember, KeyRenewalExtensionDays:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		if !allDigits(v) {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidValue, k)
		}
	}

	if err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		for k, v := range updates {
			if err := upsert(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	for k, v := range updates {
		s.aud.Record(ctx, adminID, fmt.Sprintf("updated setting %s = %s", k, v))
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
