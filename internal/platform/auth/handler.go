package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterRoutes: public は未認証、me は要認証、admin は admin ロール必須のグループを受け取る
func RegisterRoutes(public, me, admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	public.POST("/auth/login", h.Login)
	public.POST("/auth/register", h.Register)

	me.GET("/me", h.Me)
	me.PUT("/me/password", h.ChangePassword)

	admin.GET("/members", h.ListMembers)
	admin.POST("/members", h.CreateMember)
	admin.PUT("/members/:member_id", h.UpdateMember)
	admin.POST("/members/:member_id/lock", h.LockMember)
	admin.POST("/members/:member_id/unlock", h.UnlockMember)
	admin.POST("/members/:member_id/reset-password", h.ResetPassword)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if err == ErrLocked {
			c.JSON(http.StatusForbidden, gin.H{"error": "account is locked"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "message": "login successful"})
}

type RegisterRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m, err := h.svc.Register(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberBody(m))
}

func (h *Handler) Me(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	m, err := h.svc.Me(c.Request.Context(), p)
	if err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, memberBody(m))
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// ===== admin =====

func (h *Handler) ListMembers(c *gin.Context) {
	limit := atoiDef(c.Query("limit"), 50)
	offset := atoiDef(c.Query("offset"), 0)
	items, total, err := h.svc.ListMembers(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	out := make([]gin.H, 0, len(items))
	for i := range items {
		out = append(out, memberBody(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": total})
}

type CreateMemberRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"` // 未指定なら reader
}

func (h *Handler) CreateMember(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	m, err := h.svc.CreateMember(c.Request.Context(), p, req.FullName, req.Email, req.Password, req.Role)
	if err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberBody(m))
}

type UpdateMemberRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

func (h *Handler) UpdateMember(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id must be a number"})
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.UpdateMember(c.Request.Context(), p, id, req.FullName, req.Email); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (h *Handler) LockMember(c *gin.Context)   { h.setStatus(c, StatusLocked) }
func (h *Handler) UnlockMember(c *gin.Context) { h.setStatus(c, StatusActive) }

func (h *Handler) setStatus(c *gin.Context, status string) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id must be a number"})
		return
	}
	if err := h.svc.SetMemberStatus(c.Request.Context(), p, id, status); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "status: " + status})
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member_id must be a number"})
		return
	}
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), p, id, req.NewPassword); err != nil {
		writeSvcErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

// ===== helpers =====

func memberBody(m *Member) gin.H {
	return gin.H{
		"member_id":  m.ID,
		"full_name":  m.FullName,
		"email":      m.Email,
		"role":       m.Role,
		"status":     m.Status,
		"created_at": m.CreatedAt.Format(time.RFC3339),
	}
}

func writeSvcErr(c *gin.Context, err error) {
	switch err {
	case ErrAlreadyExists:
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case ErrInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case ErrAuthFailed:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
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
