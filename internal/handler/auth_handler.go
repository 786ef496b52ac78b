package handler

import (
	"net/http"

	"medportal/internal/services"
	"medportal/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles wallet session endpoints.
type AuthHandler struct {
	service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Session issues an access token for a connected wallet.
func (h *AuthHandler) Session(c *gin.Context) {
	var req httpdto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	res, err := h.service.IssueSession(c.Request.Context(), req.WalletAddress)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

// Me returns the wallet and role of the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	wallet, _ := services.WalletFromContext(ctx)
	role, _ := services.RoleFromContext(ctx)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MeResponse{
		WalletAddress: wallet,
		Role:          string(role),
	}))
}
