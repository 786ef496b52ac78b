package httpdto

// SessionRequest is used for POST /auth/session
type SessionRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// MeResponse is returned by GET /me
type MeResponse struct {
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
}
