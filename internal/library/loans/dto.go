package loans

import "time"

// 予約リクエスト（読者のセルフサービス）
type ReserveRequest struct {
	BookID   int64 `json:"book_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required"`
	// "2006-01-02" 形式の文字列を想定（DATE）
	PickupOn string `json:"pickup_on" binding:"required"`
	DueOn    string `json:"due_on" binding:"required"`
}

// 窓口での貸出登録リクエスト（admin、pending を経由しない）
type AdminLoanRequest struct {
	BookID     int64  `json:"book_id" binding:"required"`
	MemberID   int64  `json:"member_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	BorrowedOn string `json:"borrowed_on" binding:"required"`
	DueOn      string `json:"due_on" binding:"required"`
}

// 台帳エントリのレスポンス
type EntryResponse struct {
	EntryULID  string     `json:"entry_ulid"`
	BookID     int64      `json:"book_id"`
	BookTitle  string     `json:"book_title,omitempty"`
	MemberID   int64      `json:"member_id"`
	MemberName string     `json:"member_name,omitempty"`
	Quantity   int        `json:"quantity"`
	BorrowedOn string     `json:"borrowed_on"`
	DueOn      string     `json:"due_on"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Fee        float64    `json:"fee"`
	Status     Status     `json:"status"`
}

// 確認・キャンセル等の共通レスポンス
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// 返却処理のレスポンス（延滞料を含む）
type ReturnResult struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ReturnedAt time.Time `json:"returned_at"`
	DaysLate   int       `json:"days_late"`
	Fee        float64   `json:"fee"`
}

// 貸出延長のレスポンス
type RenewResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	NewDueOn string `json:"new_due_on"`
}

// 延滞一覧のレスポンス行
type OverdueResponse struct {
	EntryULID  string `json:"entry_ulid"`
	BookTitle  string `json:"book_title"`
	MemberName string `json:"member_name"`
	Email      string `json:"email"`
	Quantity   int    `json:"quantity"`
	BorrowedOn string `json:"borrowed_on"`
	DueOn      string `json:"due_on"`
	DaysLate   int    `json:"days_late"`
}
