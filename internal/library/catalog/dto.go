package catalog

import "time"

type BookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Genre       string `json:"genre" binding:"required"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type BookResponse struct {
	BookID      int64     `json:"book_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Author      string    `json:"author"`
	Genre       string    `json:"genre"`
	Description string    `json:"description,omitempty"`
	Quantity    int       `json:"quantity"`
	Status      string    `json:"status"`
	AvgRating   float64   `json:"avg_rating"`
	RatingCount int64     `json:"rating_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBookResponse(b *Book) BookResponse {
	return BookResponse{
		BookID:      b.ID,
		Title:       b.Title,
		Slug:        b.Slug,
		Author:      b.AuthorName,
		Genre:       b.GenreName,
		Description: b.Description,
		Quantity:    b.Quantity,
		Status:      b.Status,
		AvgRating:   b.AvgRating(),
		RatingCount: b.RatingCount,
		CreatedAt:   b.CreatedAt,
	}
}
