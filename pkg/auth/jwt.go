package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goauthz/pkg/config"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

// 令牌类型
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims JWT声明，只保存不随权限变化的用户标识
type Claims struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type,omitempty"`
	LoginDays int    `json:"login_days,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
}

// NewJWTManager 创建JWT管理器，算法支持 HS256/HS384/HS512
func NewJWTManager(cfg *config.JWTConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	var method jwt.SigningMethod
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm: %s", cfg.Algorithm)
	}
	return &JWTManager{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// CreateToken 签发令牌，ttl 决定 exp
func (m *JWTManager) CreateToken(claims Claims, ttl time.Duration) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.secret)
}

// ParseToken 校验签名与有效期并解析声明。
// 过期返回 ErrTokenExpired，其余校验失败返回 ErrTokenInvalid。
func (m *JWTManager) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.WithCause(apperrors.ErrTokenExpired, err)
		}
		return nil, apperrors.WithCause(apperrors.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	return claims, nil
}

// StripBearer 去掉 Authorization 头的 Bearer 前缀
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
