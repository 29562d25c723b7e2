package engagement

import "time"

// Rating は1会員1冊につき1件（上書き可）
type Rating struct {
	BookID   int64
	MemberID int64
	Stars    int // 1..5
}

type Comment struct {
	ID         int64     `json:"comment_id"`
	BookID     int64     `json:"book_id"`
	MemberID   int64     `json:"member_id"`
	MemberName string    `json:"member_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type FavoriteBook struct {
	BookID    int64     `json:"book_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	AddedAt   time.Time `json:"added_at"`
	Available bool      `json:"available"`
}
