package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/database"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserInfoTTL 用户鉴权上下文缓存时间
const UserInfoTTL = 30 * time.Minute

func accessTokenKey(sessionID string) string  { return "access_token:" + sessionID }
func refreshTokenKey(sessionID string) string { return "refresh_token:" + sessionID }
func userInfoKey(userID string) string        { return "user_info:" + userID }
func userSessionKey(userID string) string     { return "user_session:" + userID }

// Credentials 登录凭据
type Credentials struct {
	Username  string
	Password  string
	CaptchaID string
	Captcha   string
	LoginDays int
	IP        string
	UserAgent string
}

// TokenPair 登录结果
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresTime  int64  `json:"expiresTime"`
	SessionID    string `json:"-"`
}

// CredentialStore 按登录名查找用户与密码哈希
type CredentialStore interface {
	// FindCredential 登录名可以是用户名、邮箱或手机号，不存在时返回 nil
	FindCredential(ctx context.Context, login string) (*identity.User, string, error)
}

// LoginRecord 登录日志
type LoginRecord struct {
	UserID    string
	Username  string
	SessionID string
	IP        string
	UserAgent string
	Success   bool
	Message   string
}

// LoginRecorder 登录日志记录
type LoginRecorder interface {
	RecordLogin(ctx context.Context, rec *LoginRecord) error
}

// OnlineSession 在线会话
type OnlineSession struct {
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	Username  string        `json:"username"`
	ExpiresIn time.Duration `json:"expiresIn"`
}

// SessionManager 会话管理：签发令牌、维护令牌登记、缓存用户鉴权上下文
type SessionManager struct {
	jwt      *JWTManager
	cache    *database.Cache
	users    identity.UserReader
	creds    CredentialStore
	builder  *ContextBuilder
	captcha  *Captcha
	recorder LoginRecorder
	cfg      config.JWTConfig
}

// SessionOption 会话管理选项
type SessionOption func(*SessionManager)

// WithCaptcha 登录时要求验证码
func WithCaptcha(c *Captcha) SessionOption {
	return func(m *SessionManager) { m.captcha = c }
}

// WithLoginRecorder 设置登录日志记录
func WithLoginRecorder(r LoginRecorder) SessionOption {
	return func(m *SessionManager) { m.recorder = r }
}

// NewSessionManager 创建会话管理器
func NewSessionManager(jwtManager *JWTManager, cache *database.Cache, users identity.UserReader, creds CredentialStore, builder *ContextBuilder, cfg *config.JWTConfig, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		jwt:     jwtManager,
		cache:   cache,
		users:   users,
		creds:   creds,
		builder: builder,
		cfg:     *cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// JWT 令牌管理器
func (m *SessionManager) JWT() *JWTManager {
	return m.jwt
}

func (m *SessionManager) loginDays(requested int) int {
	if requested <= 0 {
		requested = m.cfg.LoginDays
	}
	if requested < 1 {
		return 1
	}
	if requested > 30 {
		return 30
	}
	return requested
}

// Login 校验凭据并创建新会话
func (m *SessionManager) Login(ctx context.Context, cred *Credentials) (*TokenPair, error) {
	if m.captcha != nil {
		if err := m.captcha.Verify(ctx, cred.CaptchaID, cred.Captcha); err != nil {
			return nil, err
		}
	}

	user, hash, err := m.creds.FindCredential(ctx, cred.Username)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if user == nil || !CheckPassword(cred.Password, hash) {
		rec := &LoginRecord{Username: cred.Username, IP: cred.IP, UserAgent: cred.UserAgent, Message: "用户名或密码错误"}
		if user != nil {
			rec.UserID = user.ID
		}
		m.record(ctx, rec)
		logger.Warn("登录失败", zap.String("username", cred.Username), zap.String("ip", cred.IP))
		return nil, apperrors.ErrInvalidCredential
	}

	pair, err := m.issue(ctx, user, m.loginDays(cred.LoginDays))
	if err != nil {
		return nil, err
	}
	m.record(ctx, &LoginRecord{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: pair.SessionID,
		IP:        cred.IP,
		UserAgent: cred.UserAgent,
		Success:   true,
		Message:   "登录成功",
	})
	logger.Info("用户登录成功", zap.String("username", user.Username), zap.String("sessionId", pair.SessionID))
	return pair, nil
}

// issue 为用户创建新会话：签发令牌、写入登记、刷新用户信息缓存
func (m *SessionManager) issue(ctx context.Context, user *identity.User, days int) (*TokenPair, error) {
	sessionID := uuid.NewString()
	lifetime := time.Duration(days) * 24 * time.Hour
	refreshLifetime := lifetime + time.Duration(m.cfg.RefreshExtraHours)*time.Hour

	base := Claims{UserID: user.ID, Username: user.Username, SessionID: sessionID}

	access := base
	access.TokenType = TokenAccess
	accessToken, err := m.jwt.CreateToken(access, lifetime)
	if err != nil {
		return nil, apperrors.Internal("生成令牌失败", err)
	}
	refresh := base
	refresh.TokenType = TokenRefresh
	refresh.LoginDays = days
	refreshToken, err := m.jwt.CreateToken(refresh, refreshLifetime)
	if err != nil {
		return nil, apperrors.Internal("生成令牌失败", err)
	}

	info, err := m.builder.BuildFor(ctx, user)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if err := m.storeUserInfo(ctx, info); err != nil {
		return nil, apperrors.Internal("", err)
	}

	if !m.cfg.MultiLogin {
		if err := m.replaceSession(ctx, user.ID, sessionID, refreshLifetime); err != nil {
			return nil, apperrors.Internal("", err)
		}
	}
	if err := m.cache.Set(ctx, accessTokenKey(sessionID), accessToken, lifetime); err != nil {
		return nil, apperrors.Internal("", err)
	}
	if err := m.cache.Set(ctx, refreshTokenKey(sessionID), refreshToken, refreshLifetime); err != nil {
		return nil, apperrors.Internal("", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresTime:  time.Now().Add(lifetime).Unix(),
		SessionID:    sessionID,
	}, nil
}

// replaceSession 单点登录：撤销用户上一次的会话
func (m *SessionManager) replaceSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	prev, err := m.cache.Get(ctx, userSessionKey(userID))
	switch {
	case errors.Is(err, database.ErrCacheMiss):
	case err != nil:
		return err
	default:
		if err := m.cache.Del(ctx, accessTokenKey(prev), refreshTokenKey(prev)); err != nil {
			return err
		}
		logger.Info("单点登录，已撤销上一会话", zap.String("userId", userID), zap.String("sessionId", prev))
	}
	return m.cache.Set(ctx, userSessionKey(userID), sessionID, ttl)
}

func (m *SessionManager) record(ctx context.Context, rec *LoginRecord) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordLogin(ctx, rec); err != nil {
		logger.Error("记录登录日志失败", zap.String("username", rec.Username), zap.Error(err))
	}
}

func (m *SessionManager) storeUserInfo(ctx context.Context, info *UserAuthContext) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, userInfoKey(info.ID), data, UserInfoTTL)
}

// GetCurrentUser 校验令牌与会话登记并返回用户鉴权上下文。
// 认证失败返回 401 错误，缓存或存储故障返回 500 错误。
func (m *SessionManager) GetCurrentUser(ctx context.Context, token string) (*UserAuthContext, error) {
	token = StripBearer(token)
	if token == "" {
		return nil, apperrors.ErrUnauthorized
	}
	claims, err := m.jwt.ParseToken(token)
	if err != nil {
		logger.Warn("用户token校验失败", zap.Error(err))
		return nil, err
	}
	if claims.TokenType == TokenRefresh {
		logger.Warn("刷新令牌不能用于访问接口", zap.String("sessionId", claims.SessionID))
		return nil, apperrors.ErrTokenInvalid
	}

	user, err := m.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if user == nil {
		logger.Warn("用户不存在", zap.String("userId", claims.UserID))
		return nil, apperrors.ErrUserNotFound
	}

	registered, err := m.cache.Get(ctx, accessTokenKey(claims.SessionID))
	if errors.Is(err, database.ErrCacheMiss) {
		logger.Warn("会话已失效", zap.String("sessionId", claims.SessionID))
		return nil, apperrors.ErrSessionRevoked
	}
	if err != nil {
		logger.Error("读取会话登记失败", zap.String("sessionId", claims.SessionID), zap.Error(err))
		return nil, apperrors.Internal("", err)
	}
	if m.cfg.StrictSession && registered != token {
		logger.Warn("令牌与会话登记不一致", zap.String("sessionId", claims.SessionID))
		return nil, apperrors.ErrSessionRevoked
	}

	info, err := m.loadUserInfo(ctx, user)
	if err != nil {
		logger.Error("加载用户信息失败", zap.String("userId", user.ID), zap.Error(err))
		return nil, apperrors.Internal("", err)
	}
	info.SessionID = claims.SessionID
	return info, nil
}

// loadUserInfo 读取用户信息缓存，未命中或损坏时重建
func (m *SessionManager) loadUserInfo(ctx context.Context, user *identity.User) (*UserAuthContext, error) {
	data, err := m.cache.Get(ctx, userInfoKey(user.ID))
	switch {
	case err == nil:
		var info UserAuthContext
		if jsonErr := json.Unmarshal([]byte(data), &info); jsonErr == nil {
			return &info, nil
		}
		logger.Warn("用户信息缓存损坏，重新加载", zap.String("userId", user.ID))
		if err := m.cache.Del(ctx, userInfoKey(user.ID)); err != nil {
			return nil, err
		}
	case !errors.Is(err, database.ErrCacheMiss):
		return nil, err
	}

	info, err := m.builder.BuildFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := m.storeUserInfo(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Logout 仅当会话登记的令牌与请求令牌一致时删除登记，返回是否删除
func (m *SessionManager) Logout(ctx context.Context, token string) (bool, error) {
	token = StripBearer(token)
	claims, err := m.jwt.ParseToken(token)
	if err != nil {
		logger.Warn("注销时token校验失败", zap.Error(err))
		return false, err
	}

	deleted, err := m.cache.CompareAndDelete(ctx, accessTokenKey(claims.SessionID), token)
	if err != nil {
		return false, apperrors.Internal("", err)
	}
	if !deleted {
		return false, nil
	}
	if err := m.cache.Del(ctx, refreshTokenKey(claims.SessionID)); err != nil {
		return true, apperrors.Internal("", err)
	}
	logger.Info("用户注销", zap.String("userId", claims.UserID), zap.String("sessionId", claims.SessionID))
	return true, nil
}

// ForceLogout 强制下线指定会话，调用方负责数据权限校验
func (m *SessionManager) ForceLogout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.BadRequest("会话ID不能为空")
	}
	if err := m.cache.Del(ctx, accessTokenKey(sessionID), refreshTokenKey(sessionID)); err != nil {
		return apperrors.Internal("", err)
	}
	logger.Info("会话已强制下线", zap.String("sessionId", sessionID))
	return nil
}

// Refresh 用刷新令牌换取新会话，刷新令牌只能使用一次
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = StripBearer(refreshToken)
	claims, err := m.jwt.ParseToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenRefresh {
		return nil, apperrors.ErrTokenInvalid
	}

	used, err := m.cache.CompareAndDelete(ctx, refreshTokenKey(claims.SessionID), refreshToken)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if !used {
		logger.Warn("刷新令牌已失效", zap.String("sessionId", claims.SessionID))
		return nil, apperrors.ErrSessionRevoked
	}

	user, err := m.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	if err := m.cache.Del(ctx, accessTokenKey(claims.SessionID)); err != nil {
		return nil, apperrors.Internal("", err)
	}
	return m.issue(ctx, user, m.loginDays(claims.LoginDays))
}

// InvalidateUser 删除用户信息缓存，下次请求时按最新角色与部门重建
func (m *SessionManager) InvalidateUser(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userInfoKey(id)
	}
	if err := m.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate user info: %w", err)
	}
	return nil
}

// OnlineSessions 列出当前登记的全部会话
func (m *SessionManager) OnlineSessions(ctx context.Context) ([]OnlineSession, error) {
	keys, err := m.cache.Scan(ctx, accessTokenKey("*"))
	if err != nil {
		return nil, apperrors.Internal("", err)
	}

	sessions := make([]OnlineSession, 0, len(keys))
	for _, key := range keys {
		sessionID := strings.TrimPrefix(key, accessTokenKey(""))
		token, err := m.cache.Get(ctx, key)
		if errors.Is(err, database.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("", err)
		}
		claims, err := m.jwt.ParseToken(token)
		if err != nil {
			continue
		}
		ttl, err := m.cache.TTL(ctx, key)
		if err != nil {
			return nil, apperrors.Internal("", err)
		}
		sessions = append(sessions, OnlineSession{
			SessionID: sessionID,
			UserID:    claims.UserID,
			Username:  claims.Username,
			ExpiresIn: ttl,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })
	return sessions, nil
}
