package catalog

import "time"

// Book は books テーブルの1行。quantity は「貸出可能残」で、
// 予約・貸出の確定時に引き当てられる（棚の実数ではない）。
type Book struct {
	ID          int64
	Title       string
	Slug        string
	AuthorID    int64
	AuthorName  string
	GenreID     int64
	GenreName   string
	Description string
	Quantity    int
	Status      string // "active" | "hidden"
	RatingSum   int64
	RatingCount int64
	CreatedAt   time.Time
}

const (
	StatusActive = "active"
	StatusHidden = "hidden"
)

// AvgRating は平均評価（評価なしは0）
func (b *Book) AvgRating() float64 {
	if b.RatingCount == 0 {
		return 0
	}
	return float64(b.RatingSum) / float64(b.RatingCount)
}

// 検索条件
type Filter struct {
	Keyword  string
	AuthorID *int64
	GenreID  *int64
	// admin のみ hidden を含められる
	IncludeHidden bool
}

type Page struct {
	Limit  int
	Offset int
}
