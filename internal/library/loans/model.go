package loans

import (
	"database/sql"
	"time"
)

// Status は貸出台帳エントリの状態。遷移は Service 経由のみ（§状態機械の唯一の権威）。
type Status string

const (
	// 予約済み・受取待ち
	StatusPending Status = "pending"
	// 貸出中
	StatusActive Status = "active"
	// 返却済み（終端）
	StatusReturned Status = "returned"
	// キャンセル済み（終端）
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// Terminal: ここから出る遷移は存在しない
func (s Status) Terminal() bool {
	return s == StatusReturned || s == StatusCancelled
}

// CanTransitionTo は合法な状態遷移の表。
//
//	pending   -> active | cancelled
//	active    -> returned
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusReturned
	}
	return false
}

// Entry は loan_entries テーブルの1行を表す
type Entry struct {
	EntryID    int64
	EntryULID  string
	BookID     int64
	MemberID   int64
	Quantity   int
	BorrowedOn time.Time // DATE（予約時は受取予定日）
	DueOn      time.Time // DATE
	ReturnedAt sql.NullTime
	Fee        float64
	Status     Status
}

// BookRow は在庫チェックのためにロックした books の行
type BookRow struct {
	BookID   int64
	Quantity int
	Status   string // "active" | "hidden"
}

// EntryLock は FOR UPDATE でエントリを引く際の条件
type EntryLock struct {
	ULID     string
	Status   Status
	MemberID int64 // 0 なら所有者を問わない（admin用）
}

// 一覧取得用の検索条件
type Filter struct {
	MemberID *int64
	BookID   *int64
	Status   *Status
	From     *time.Time
	To       *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}

// EntryDetail は一覧・詳細表示用（タイトル・氏名をJOINで付与）
type EntryDetail struct {
	Entry
	BookTitle  string
	MemberName string
}

// OverdueRow は返却期限超過の一覧行
type OverdueRow struct {
	EntryULID  string
	BookTitle  string
	MemberName string
	Email      string
	Quantity   int
	BorrowedOn time.Time
	DueOn      time.Time
	DaysLate   int
}
