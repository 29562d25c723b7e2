package loans

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes: reader は要認証、admin は admin ロール必須のグループを受け取る
func RegisterRoutes(reader, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	reader.POST("/loans", h.Reserve)
	reader.POST("/loans/:entry_ulid/cancel", h.Cancel)
	reader.POST("/loans/:entry_ulid/renew", h.Renew)
	reader.GET("/loans/mine", h.ListMine)
	reader.GET("/loans/:entry_ulid", h.Get)

	admin.POST("/admin/loans", h.AdminLoan)
	admin.POST("/admin/loans/:entry_ulid/confirm", h.ConfirmPickup)
	admin.POST("/admin/loans/:entry_ulid/return", h.Return)
	admin.POST("/admin/loans/:entry_ulid/cancel", h.Cancel)
	admin.GET("/admin/loans", h.List)
	admin.GET("/admin/loans/overdue", h.ListOverdue)
}

func (h *Handler) Reserve(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, ErrInvalid("invalid request body"))
		return
	}
	resp, err := h.svc.Reserve(c.Request.Context(), p, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) AdminLoan(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	var req AdminLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, ErrInvalid("invalid request body"))
		return
	}
	resp, err := h.svc.AdminLoan(c.Request.Context(), p, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ConfirmPickup(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	res, err := h.svc.ConfirmPickup(c.Request.Context(), p, c.Param("entry_ulid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Return(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	res, err := h.svc.Return(c.Request.Context(), p, c.Param("entry_ulid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	res, err := h.svc.Cancel(c.Request.Context(), p, c.Param("entry_ulid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Renew(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	res, err := h.svc.Renew(c.Request.Context(), p, c.Param("entry_ulid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	resp, err := h.svc.GetEntry(c.Request.Context(), p, c.Param("entry_ulid"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListMine(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		writeErr(c, ErrForbidden("unauthenticated"))
		return
	}
	items, total, err := h.svc.ListMine(c.Request.Context(), p, pageFromQuery(c))
	if err != nil {
		writeErr(c, ErrInternal("failed to list loans"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(c, ErrInvalid("member_id must be a number"))
			return
		}
		f.MemberID = &id
	}
	if v := c.Query("book_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(c, ErrInvalid("book_id must be a number"))
			return
		}
		f.BookID = &id
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			writeErr(c, ErrInvalid("unknown status"))
			return
		}
		f.Status = &st
	}
	if v := c.Query("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeErr(c, ErrInvalid("invalid from date, expected YYYY-MM-DD"))
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeErr(c, ErrInvalid("invalid to date, expected YYYY-MM-DD"))
			return
		}
		// to は当日を含む
		t = t.Add(24 * time.Hour)
		f.To = &t
	}

	items, total, err := h.svc.List(c.Request.Context(), f, pageFromQuery(c))
	if err != nil {
		writeErr(c, ErrInternal("failed to list loans"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	rows, err := h.svc.ListOverdue(c.Request.Context())
	if err != nil {
		writeErr(c, ErrInternal("failed to list overdue loans"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "total": len(rows)})
}

// ===== helpers =====

func pageFromQuery(c *gin.Context) Page {
	return Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  c.Query("order"),
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

func writeErr(c *gin.Context, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal("internal error")
	}
	c.JSON(toHTTPStatus(err), gin.H{
		"error": gin.H{"code": apiErr.Code, "message": apiErr.Message},
	})
}
