package engagement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: public はコメント閲覧のみ、reader は要認証、admin はモデレーション
func RegisterRoutes(public, reader, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	public.GET("/books/:book_id/comments", h.ListComments)

	reader.POST("/books/:book_id/favorite", h.ToggleFavorite)
	reader.GET("/favorites", h.ListFavorites)
	reader.PUT("/books/:book_id/rating", h.Rate)
	reader.GET("/books/:book_id/rating", h.MyRating)
	reader.POST("/books/:book_id/comments", h.AddComment)

	admin.DELETE("/admin/comments/:comment_id", h.DeleteComment)
}

func (h *Handler) ToggleFavorite(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id must be a number"})
		return
	}

	favorited, err := h.svc.ToggleFavorite(c.Request.Context(), p.ID, bookID)
	if err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorited": favorited})
}

func (h *Handler) ListFavorites(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	items, err := h.svc.ListFavorites(c.Request.Context(), p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list favorites"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type RateRequest struct {
	Stars int `json:"stars" binding:"required"`
}

func (h *Handler) Rate(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id must be a number"})
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.svc.Rate(c.Request.Context(), p.ID, bookID, req.Stars); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rating saved"})
}

func (h *Handler) MyRating(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id must be a number"})
		return
	}
	stars, rated, err := h.svc.MyRating(c.Request.Context(), p.ID, bookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rating"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rated": rated, "stars": stars})
}

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) AddComment(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id must be a number"})
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cm, err := h.svc.AddComment(c.Request.Context(), p.ID, bookID, req.Body)
	if err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *Handler) ListComments(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id must be a number"})
		return
	}
	limit := atoiDef(c.Query("limit"), 50)
	offset := atoiDef(c.Query("offset"), 0)

	items, total, err := h.svc.ListComments(c.Request.Context(), bookID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list comments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) DeleteComment(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("comment_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment_id must be a number"})
		return
	}
	if err := h.svc.DeleteComment(c.Request.Context(), p.ID, id); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ===== helpers =====

func writeSvcErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
