package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: public は未認証の閲覧系、admin は管理系
func RegisterRoutes(public, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	public.GET("/books", h.Search)
	public.GET("/books/:book_id", h.Get)
	public.GET("/authors", h.ListAuthors)
	public.GET("/genres", h.ListGenres)

	admin.POST("/admin/books", h.Create)
	admin.PUT("/admin/books/:book_id", h.Update)
	admin.POST("/admin/books/:book_id/hide", h.Hide)
	admin.POST("/admin/books/:book_id/restore", h.Restore)
	admin.GET("/admin/books", h.SearchAll)
}

func (h *Handler) Search(c *gin.Context)    { h.search(c, false) }
func (h *Handler) SearchAll(c *gin.Context) { h.search(c, true) }

func (h *Handler) search(c *gin.Context, includeHidden bool) {
	f := Filter{Keyword: c.Query("q"), IncludeHidden: includeHidden}
	if v := c.Query("author_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(c, ErrInvalid("author_id must be a number"))
			return
		}
		f.AuthorID = &id
	}
	if v := c.Query("genre_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(c, ErrInvalid("genre_id must be a number"))
			return
		}
		f.GenreID = &id
	}
	p := Page{Limit: atoiDef(c.Query("limit"), 50), Offset: atoiDef(c.Query("offset"), 0)}

	items, total, err := h.svc.Search(c.Request.Context(), f, p)
	if err != nil {
		writeErr(c, ErrInternal("search failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		writeErr(c, ErrInvalid("book_id must be a number"))
		return
	}
	// 認証済みの admin だけが hidden の書籍も参照できる
	p, ok := auth.PrincipalFrom(c)
	includeHidden := ok && p.IsAdmin()

	resp, err := h.svc.Get(c.Request.Context(), id, includeHidden)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListAuthors(c *gin.Context) {
	items, err := h.svc.ListAuthors(c.Request.Context())
	if err != nil {
		writeErr(c, ErrInternal("failed to list authors"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ListGenres(c *gin.Context) {
	items, err := h.svc.ListGenres(c.Request.Context())
	if err != nil {
		writeErr(c, ErrInternal("failed to list genres"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ===== admin =====

func (h *Handler) Create(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, ErrInvalid("invalid request body"))
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), p.ID, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Update(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		writeErr(c, ErrInvalid("book_id must be a number"))
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, ErrInvalid("invalid request body"))
		return
	}
	if err := h.svc.Update(c.Request.Context(), p.ID, id, req); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (h *Handler) Hide(c *gin.Context)    { h.setStatus(c, (*Service).Hide) }
func (h *Handler) Restore(c *gin.Context) { h.setStatus(c, (*Service).Restore) }

func (h *Handler) setStatus(c *gin.Context, fn func(*Service, context.Context, int64, int64) error) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil {
		writeErr(c, ErrInvalid("book_id must be a number"))
		return
	}
	if err := fn(h.svc, c.Request.Context(), p.ID, id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ===== helpers =====

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

func writeErr(c *gin.Context, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal("internal error")
	}
	c.JSON(toHTTPStatus(err), gin.H{
		"error": gin.H{"code": apiErr.Code, "message": apiErr.Message},
	})
}
