package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes は admin 専用グループに設定APIを載せる
func RegisterRoutes(admin gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	admin.GET("/admin/settings", h.List)
	admin.PUT("/admin/settings", h.Update)
}

func (h *Handler) List(c *gin.Context) {
	raw, vals, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"raw": raw,
		"effective": gin.H{
			KeyLateFeePerDay:        vals.LateFeePerDay,
			KeyMaxBooksPerMember:    vals.MaxBooksPerMember,
			KeyRenewalExtensionDays: vals.RenewalExtensionDays,
		},
	})
}

func (h *Handler) Update(c *gin.Context) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.svc.Update(c.Request.Context(), p.ID, req); err != nil {
		if errors.Is(err, ErrUnknownKey) || errors.Is(err, ErrInvalidValue) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings updated"})
}
