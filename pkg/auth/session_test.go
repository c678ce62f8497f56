package auth

import (
	"context"
	"testing"
	"time"

	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRegistersSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)

	_, err := f.enforcer.AddGrouping(ctx, "u-1", "auditor")
	require.NoError(t, err)
	_, err = f.enforcer.AddPolicy(ctx, "auditor", "btn-export", "button")
	require.NoError(t, err)
	_, err = f.enforcer.AddPolicy(ctx, "auditor", "/api/log/*", "GET")
	require.NoError(t, err)
	f.dir.marks["btn-export"] = "log:btn:export"

	pair := f.login(t, "alice")
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	registered, err := f.mr.Get("access_token:" + pair.SessionID)
	require.NoError(t, err)
	assert.Equal(t, pair.AccessToken, registered)
	assert.InDelta(t, float64(24*time.Hour), float64(f.mr.TTL("access_token:"+pair.SessionID)), float64(time.Minute))
	assert.Equal(t, UserInfoTTL, f.mr.TTL("user_info:u-1"))

	user, err := f.sessions.GetCurrentUser(ctx, "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, pair.SessionID, user.SessionID)
	assert.Equal(t, identity.DeptAdmin, user.UserType)
	assert.Equal(t, datascope.ScopeDeptAndChild, user.DataScope)
	assert.ElementsMatch(t, []string{"D1", "D2"}, user.SubDepartments)
	assert.Equal(t, []string{"auditor"}, user.Roles)
	assert.Equal(t, []string{"GET:/api/log/*"}, user.APIs)
	assert.True(t, user.HasMark("log:btn:export"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	rec := &recorder{}
	f := newSessionFixture(t, nil, WithLoginRecorder(rec))
	ctx := context.Background()

	_, err := f.sessions.Login(ctx, &Credentials{Username: "alice", Password: "wrong", IP: "10.0.0.1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	_, err = f.sessions.Login(ctx, &Credentials{Username: "nobody", Password: testPassword})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	f.login(t, "alice")

	require.Len(t, rec.records, 3)
	assert.False(t, rec.records[0].Success)
	assert.Equal(t, "u-1", rec.records[0].UserID)
	assert.Equal(t, "10.0.0.1", rec.records[0].IP)
	assert.Empty(t, rec.records[1].UserID)
	assert.True(t, rec.records[2].Success)
	assert.NotEmpty(t, rec.records[2].SessionID)
}

func TestLoginDaysBounds(t *testing.T) {
	f := newSessionFixture(t, nil)

	pair, err := f.sessions.Login(context.Background(), &Credentials{Username: "bob", Password: testPassword, LoginDays: 90})
	require.NoError(t, err)
	assert.InDelta(t, float64(30*24*time.Hour), float64(f.mr.TTL("access_token:"+pair.SessionID)), float64(time.Minute))
	assert.InDelta(t, float64(30*24*time.Hour+2*time.Hour), float64(f.mr.TTL("refresh_token:"+pair.SessionID)), float64(time.Minute))
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	_, err := f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)

	ok, err := f.sessions.Logout(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)

	ok, err = f.sessions.Logout(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok, "second logout finds nothing to delete")

	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked, "logout also revokes the refresh token")
}

func TestLogoutRequiresMatchingToken(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	claims, err := f.sessions.JWT().ParseToken(pair.AccessToken)
	require.NoError(t, err)
	other, err := f.sessions.JWT().CreateToken(Claims{
		UserID:    claims.UserID,
		Username:  claims.Username,
		SessionID: claims.SessionID,
		TokenType: TokenAccess,
	}, 3*time.Hour)
	require.NoError(t, err)

	ok, err := f.sessions.Logout(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.mr.Exists("access_token:"+pair.SessionID))
}

func TestLogoutRejectsBadSignature(t *testing.T) {
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	_, err := f.sessions.Logout(context.Background(), pair.AccessToken+"x")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestExpiredTokenRejected(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)

	jm := f.sessions.JWT()
	jm.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	token, err := jm.CreateToken(Claims{UserID: "u-2", Username: "bob", SessionID: "s-expired", TokenType: TokenAccess}, time.Hour)
	require.NoError(t, err)
	jm.now = time.Now

	require.NoError(t, f.mr.Set("access_token:s-expired", token))

	_, err = f.sessions.GetCurrentUser(ctx, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.Contains(t, apperrors.GetMessage(err), "过期")
	assert.Equal(t, 401, apperrors.GetCode(err))
}

func TestStrictSessionEquality(t *testing.T) {
	for _, strict := range []bool{true, false} {
		strict := strict
		name := "presence"
		if strict {
			name = "strict"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newSessionFixture(t, func(c *config.JWTConfig) { c.StrictSession = strict })
			pair := f.login(t, "bob")

			claims, err := f.sessions.JWT().ParseToken(pair.AccessToken)
			require.NoError(t, err)
			reissued, err := f.sessions.JWT().CreateToken(Claims{
				UserID:    claims.UserID,
				Username:  claims.Username,
				SessionID: claims.SessionID,
				TokenType: TokenAccess,
			}, 5*time.Hour)
			require.NoError(t, err)
			require.NotEqual(t, pair.AccessToken, reissued)

			_, err = f.sessions.GetCurrentUser(ctx, reissued)
			if strict {
				assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRefreshTokenCannotAuthenticate(t *testing.T) {
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	_, err := f.sessions.GetCurrentUser(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestDeletedUserRejected(t *testing.T) {
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")
	f.dir.removeUser("u-2")

	_, err := f.sessions.GetCurrentUser(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestForceLogout(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	require.NoError(t, f.sessions.ForceLogout(ctx, pair.SessionID))

	_, err := f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)
	assert.False(t, f.mr.Exists("refresh_token:"+pair.SessionID))
	assert.Error(t, f.sessions.ForceLogout(ctx, ""))
}

func TestRefreshMintsNewSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	next, err := f.sessions.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.SessionID, next.SessionID)

	_, err = f.sessions.GetCurrentUser(ctx, next.AccessToken)
	require.NoError(t, err)

	_, err = f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked, "old session ends on refresh")

	_, err = f.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked, "refresh token is single use")

	_, err = f.sessions.Refresh(ctx, next.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestSingleLoginReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, func(c *config.JWTConfig) { c.MultiLogin = false })

	first := f.login(t, "bob")
	second := f.login(t, "bob")

	_, err := f.sessions.GetCurrentUser(ctx, first.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)
	_, err = f.sessions.GetCurrentUser(ctx, second.AccessToken)
	assert.NoError(t, err)
}

func TestMultiLoginKeepsSessions(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)

	first := f.login(t, "bob")
	second := f.login(t, "bob")
	assert.NotEqual(t, first.SessionID, second.SessionID)

	for _, p := range []*TokenPair{first, second} {
		_, err := f.sessions.GetCurrentUser(ctx, p.AccessToken)
		assert.NoError(t, err)
	}

	online, err := f.sessions.OnlineSessions(ctx)
	require.NoError(t, err)
	require.Len(t, online, 2)
	for _, s := range online {
		assert.Equal(t, "u-2", s.UserID)
		assert.Greater(t, s.ExpiresIn, time.Duration(0))
	}
}

func TestInvalidateUserRebuildsContext(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	_, err := f.enforcer.AddGrouping(ctx, "u-2", "editor")
	require.NoError(t, err)

	user, err := f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, user.Roles, "cached context still in use")

	require.NoError(t, f.sessions.InvalidateUser(ctx, "u-2"))

	user, err = f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, user.Roles)
}

func TestCorruptUserInfoIsRebuilt(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	require.NoError(t, f.mr.Set("user_info:u-2", "{not json"))

	user, err := f.sessions.GetCurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
}

func TestCacheOutageIsInternalError(t *testing.T) {
	f := newSessionFixture(t, nil)
	pair := f.login(t, "bob")

	f.mr.SetError("LOADING redis is loading")
	_, err := f.sessions.GetCurrentUser(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.GetCode(err))
	assert.False(t, apperrors.IsAuth(err))
}

func TestLoginWithCaptcha(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, nil)
	captcha := NewCaptcha(f.cache)
	WithCaptcha(captcha)(f.sessions)

	_, err := f.sessions.Login(ctx, &Credentials{Username: "bob", Password: testPassword})
	assert.ErrorIs(t, err, apperrors.ErrCaptchaInvalid)

	ch, err := captcha.Generate(ctx)
	require.NoError(t, err)
	answer, err := f.mr.Get("captcha_codes:" + ch.ID)
	require.NoError(t, err)

	_, err = f.sessions.Login(ctx, &Credentials{Username: "bob", Password: testPassword, CaptchaID: ch.ID, Captcha: answer})
	require.NoError(t, err)

	_, err = f.sessions.Login(ctx, &Credentials{Username: "bob", Password: testPassword, CaptchaID: ch.ID, Captcha: answer})
	assert.Error(t, err, "captcha is single use")
}
