package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 24 * time.Hour

// AuthModule authenticates operators. Tokens are JWTs; logout puts the
// token id on a Redis denylist until the token would have expired.
type AuthModule struct {
	db        *pgxpool.Pool
	redis     *redis.Client
	JWTSecret string
}

func NewAuthModule(db *pgxpool.Pool, redis *redis.Client, JWTSecret string) *AuthModule {
	return &AuthModule{
		db:        db,
		redis:     redis,
		JWTSecret: JWTSecret,
	}
}

func generateTokenID() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(randomBytes), nil
}

func (a *AuthModule) createOperator(ctx context.Context, username, password, email string) (int, error) {
	var exists bool
	err := a.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM operators WHERE username = $1)", username).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, errors.New("username already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	var operatorID int
	err = a.db.QueryRow(ctx,
		"INSERT INTO operators (username, password, email) VALUES ($1, $2, $3) RETURNING id",
		username, string(hashedPassword), email,
	).Scan(&operatorID)
	if err != nil {
		return 0, err
	}

	return operatorID, nil
}

func (a *AuthModule) generateJWT(operatorID int) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}
	claims := jwt.MapClaims{
		"user_id": operatorID,
		"jti":     tokenID,
		"exp":     time.Now().Add(tokenLifetime).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

func (a *AuthModule) authenticateOperator(ctx context.Context, username string, password string) (int, error) {
	var operatorID int
	var passwordHash string
	err := a.db.QueryRow(ctx, "SELECT id, password FROM operators WHERE username = $1", username).Scan(&operatorID, &passwordHash)
	if err != nil {
		return 0, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return 0, errors.New("invalid credentials")
	}

	return operatorID, nil
}

func (a *AuthModule) RegisterWithJWT(ctx context.Context, username string, password string, email string) (string, error) {
	operatorID, err := a.createOperator(ctx, username, password, email)
	if err != nil {
		return "", err
	}
	return a.generateJWT(operatorID)
}

func (a *AuthModule) LoginWithJWT(ctx context.Context, username, password string) (string, error) {
	operatorID, err := a.authenticateOperator(ctx, username, password)
	if err != nil {
		return "", err
	}
	return a.generateJWT(operatorID)
}

func (a *AuthModule) parseJWT(token string) (jwt.MapClaims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (a *AuthModule) ValidateTokenJWT(ctx context.Context, token string) (string, error) {
	claims, err := a.parseJWT(token)
	if err != nil {
		return "", err
	}

	if jti, ok := claims["jti"].(string); ok && a.redis != nil {
		revoked, err := a.redis.Exists(ctx, "revoked:"+jti).Result()
		if err == nil && revoked > 0 {
			return "", errors.New("token revoked")
		}
	}

	operatorIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return "", errors.New("invalid user_id in token")
	}
	return fmt.Sprintf("%d", int(operatorIDFloat)), nil
}

// LogoutJWT denylists the token until its natural expiry.
func (a *AuthModule) LogoutJWT(ctx context.Context, token string) error {
	claims, err := a.parseJWT(token)
	if err != nil {
		return err
	}
	jti, ok := claims["jti"].(string)
	if !ok || a.redis == nil {
		return nil
	}
	ttl := tokenLifetime
	if exp, ok := claims["exp"].(float64); ok {
		if remaining := time.Until(time.Unix(int64(exp), 0)); remaining > 0 {
			ttl = remaining
		}
	}
	return a.redis.Set(ctx, "revoked:"+jti, "1", ttl).Err()
}

// ChangePassword changes the operator's password after verifying the old password
func (a *AuthModule) ChangePassword(ctx context.Context, operatorID int, oldPassword, newPassword string) error {
	var passwordHash string
	err := a.db.QueryRow(ctx, "SELECT password FROM operators WHERE id = $1", operatorID).Scan(&passwordHash)
	if err != nil {
		return errors.New("operator not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(oldPassword)); err != nil {
		return errors.New("invalid old password")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(ctx, "UPDATE operators SET password = $1 WHERE id = $2", string(hashedPassword), operatorID)
	return err
}
