package auth

// 会員ロール
const (
	RoleReader = "reader"
	RoleAdmin  = "admin"
)

// 会員ステータス
const (
	StatusActive = "active"
	StatusLocked = "locked"
)

// Principal は認証済みの操作主体。ミドルウェアが組み立て、
// 各サービス呼び出しへ明示的に引数として渡す（グローバルに持たない）。
type Principal struct {
	ID   int64
	Role string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
