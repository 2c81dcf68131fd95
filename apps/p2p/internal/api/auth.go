package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
)

const accessTokenCookie = "jwt-access"

type callerKey struct{}

type PartyResolver interface {
	ResolveParty(ctx context.Context, email string) (*ledger.Party, error)
}

// Authenticator turns a signed access token into the caller's ledger identity.
type Authenticator struct {
	secret   []byte
	resolver PartyResolver
	logger   *zap.Logger
}

func NewAuthenticator(secret string, resolver PartyResolver, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), resolver: resolver, logger: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := a.emailFromRequest(r)
		if err != nil {
			a.logger.Debug("Rejected access token", zap.Error(err))
			writeErrorResponse(w, a.logger, http.StatusUnauthorized, "unauthorized", "Missing or invalid access token")
			return
		}

		party, err := a.resolver.ResolveParty(r.Context(), email)
		switch {
		case errors.Is(err, ledger.ErrPartyNotFound):
			writeErrorResponse(w, a.logger, http.StatusUnauthorized, "wallet_not_found", "No p2p wallet registered for this account")
			return
		case err != nil:
			a.logger.Error("Failed to resolve caller wallet", zap.String("email", email), zap.Error(err))
			writeErrorResponse(w, a.logger, http.StatusBadGateway, "downstream_service_error", "Wallet service unavailable")
			return
		}

		caller := model.Caller{PartyID: party.ID, Wallet: party.Address, Email: email}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (a *Authenticator) emailFromRequest(r *http.Request) (string, error) {
	tokenString := ""
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		tokenString = cookie.Value
	} else if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenString == "" {
		return "", errors.New("no access token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}

	for _, key := range []string{"email", "sub"} {
		if email, ok := claims[key].(string); ok && strings.Contains(email, "@") {
			return strings.ToLower(email), nil
		}
	}
	return "", errors.New("token carries no email")
}

func callerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(model.Caller)
	return caller, ok
}
