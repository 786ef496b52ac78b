package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medportal/config"
	"medportal/internal/identity"
	portal_errors "medportal/pkg/errors"
	"medportal/pkg/logger"
)

// AuthService issues wallet sessions. Proving wallet ownership happens in the
// wallet provider before the client calls IssueSession.
type AuthService struct {
	resolver  *identity.Resolver
	jwtSecret []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewAuthService(resolver *identity.Resolver, cfg *config.Config) *AuthService {
	return &AuthService{
		resolver:  resolver,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryMin) * time.Minute,
		now:       time.Now,
	}
}

type SessionResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   int64         `json:"expires_in"`
	Wallet      string        `json:"wallet_address"`
	Role        identity.Role `json:"role"`
}

type AccessClaims struct {
	Wallet string        `json:"sub"`
	Role   identity.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) IssueSession(ctx context.Context, wallet string) (SessionResponse, error) {
	wallet = strings.TrimSpace(wallet)
	if err := identity.ValidateAddress(wallet); err != nil {
		return SessionResponse{}, err
	}
	role := s.resolver.RoleFor(wallet)

	now := s.now()
	claims := AccessClaims{
		Wallet: wallet,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return SessionResponse{}, err
	}

	logger.OrNop(logger.GetGlobalLogger()).Infof("session issued for %s (%s)", wallet, role)
	return SessionResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
		Wallet:      wallet,
		Role:        role,
	}, nil
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, portal_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, portal_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return AccessClaims{}, portal_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || !claims.Role.Valid() || claims.Wallet == "" {
		return AccessClaims{}, portal_errors.ErrUnauthorized
	}

	return *claims, nil
}

func HTTPStatus(err error) int {
	var wfErr *WorkflowError
	switch {
	case errors.Is(err, portal_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, portal_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, portal_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, portal_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portal_errors.ErrAlreadyExists), errors.Is(err, portal_errors.ErrConflict),
		errors.Is(err, portal_errors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, portal_errors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, portal_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &wfErr), errors.Is(err, portal_errors.ErrLedgerUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, portal_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type ctxKey string

var roleKey ctxKey = "role"

// WithWallet stores the authenticated wallet and role on ctx. The wallet is
// stored under the logger key so request logs carry it.
func WithWallet(ctx context.Context, wallet string, role identity.Role) context.Context {
	ctx = context.WithValue(ctx, logger.WalletKey, wallet)
	return context.WithValue(ctx, roleKey, role)
}

func WalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(logger.WalletKey).(string)
	return wallet, ok && wallet != ""
}

func RoleFromContext(ctx context.Context) (identity.Role, bool) {
	role, ok := ctx.Value(roleKey).(identity.Role)
	return role, ok
}
