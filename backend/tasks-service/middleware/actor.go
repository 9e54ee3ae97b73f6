package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trello-project/backend/tasks-service/logging"
	"trello-project/backend/tasks-service/models"
)

type contextKey struct{}

// Claims is the token payload issued by the users service.
type Claims struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	MemberID string `json:"memberId"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() models.Actor {
	return models.Actor{ID: c.UserID, Role: models.Role(c.Role), MemberID: c.MemberID}
}

// GenerateToken signs an actor into a token valid for ttl.
func GenerateToken(secret []byte, actor models.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   actor.ID,
		Role:     string(actor.Role),
		MemberID: actor.MemberID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" || !models.Role(claims.Role).Valid() {
		return nil, errors.New("token carries no usable actor")
	}
	return claims, nil
}

// Authenticate resolves the bearer token into a models.Actor on the request
// context. Requests without a valid token never reach next.
func Authenticate(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ValidateToken(secret, tokenString)
		if err != nil {
			logging.Logger.Warnf("Event ID: AUTH_TOKEN_INVALID, Description: %v", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claims.Actor())))
	})
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok
}
