package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"libris-backend/internal/library/audit"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrLocked        = errors.New("account locked")
	ErrInvalidInput  = errors.New("invalid input")
)

type Service struct {
	store  MemberStore
	secret []byte
	aud    *audit.Recorder
}

func NewService(db *sql.DB, secret []byte, aud *audit.Recorder) *Service {
	return &Service{store: NewStore(db), secret: secret, aud: aud}
}

// Login はメールとパスワードを検証して JWT を返す
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	m, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", ErrAuthFailed
	}
	if m.Status == StatusLocked {
		return "", ErrLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(m.ID, 10),
		"role": m.Role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(s.secret)
}

// Register は読者アカウントのセルフ登録
func (s *Service) Register(ctx context.Context, fullName, email, password string) (*Member, error) {
	return s.createMember(ctx, fullName, email, password, RoleReader)
}

// CreateMember は admin による会員登録（ロール指定可）
func (s *Service) CreateMember(ctx context.Context, p Principal, fullName, email, password, role string) (*Member, error) {
	if role == "" {
		role = RoleReader
	}
	if role != RoleReader && role != RoleAdmin {
		return nil, ErrInvalidInput
	}
	m, err := s.createMember(ctx, fullName, email, password, role)
	if err != nil {
		return nil, err
	}
	s.aud.Record(ctx, p.ID, fmt.Sprintf("created member %d (%s, role=%s)", m.ID, m.Email, m.Role))
	return m, nil
}

func (s *Service) createMember(ctx context.Context, fullName, email, password, role string) (*Member, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(strings.ToLower(email))
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if len(password) < 6 {
		return nil, ErrInvalidInput
	}

	exists, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	m := &Member{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       StatusActive,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Me は本人のプロフィールを返す
func (s *Service) Me(ctx context.Context, p Principal) (*Member, error) {
	m, err := s.store.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// ChangePassword は本人によるパスワード変更（現行パスワードの確認付き）
func (s *Service) ChangePassword(ctx context.Context, p Principal, current, next string) error {
	if len(next) < 6 {
		return ErrInvalidInput
	}
	m, err := s.store.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(current)); err != nil {
		return ErrAuthFailed
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	n, err := s.store.SetPasswordHash(ctx, p.ID, string(hash))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ===== admin: 会員管理 =====

func (s *Service) ListMembers(ctx context.Context, keyword string, limit, offset int) ([]Member, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, keyword, limit, offset)
}

func (s *Service) UpdateMember(ctx context.Context, p Principal, id int64, fullName, email string) error {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(strings.ToLower(email))
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return ErrInvalidInput
	}
	n, err := s.store.UpdateProfile(ctx, id, fullName, email)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.aud.Record(ctx, p.ID, fmt.Sprintf("updated member %d profile", id))
	return nil
}

// SetMemberStatus は会員のロック/解除。ハード削除はしない。
func (s *Service) SetMemberStatus(ctx context.Context, p Principal, id int64, status string) error {
	if status != StatusActive && status != StatusLocked {
		return ErrInvalidInput
	}
	if id == p.ID {
		// 自分自身をロックして締め出す事故の防止
		return ErrInvalidInput
	}
	n, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.aud.Record(ctx, p.ID, fmt.Sprintf("set member %d status to %s", id, status))
	return nil
}

// ResetPassword は admin による強制パスワード再設定
func (s *Service) ResetPassword(ctx context.Context, p Principal, id int64, next string) error {
	if len(next) < 6 {
		return ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	n, err := s.store.SetPasswordHash(ctx, id, string(hash))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.aud.Record(ctx, p.ID, fmt.Sprintf("reset password for member %d", id))
	return nil
}
