package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/datascope"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/policy"
	"github.com/goauthz/pkg/testkit"
	"github.com/stretchr/testify/require"
)

const testPassword = "s3cret!"

// directory 内存中的用户、部门与按钮权限
type directory struct {
	mu     sync.Mutex
	users  map[string]*identity.User
	hashes map[string]string
	depts  map[string]string
	marks  map[string]string
}

func newDirectory() *directory {
	return &directory{
		users:  map[string]*identity.User{},
		hashes: map[string]string{},
		depts:  map[string]string{},
		marks:  map[string]string{},
	}
}

func (d *directory) addUser(t *testing.T, id, name string, ut identity.UserType, dept string) {
	t.Helper()
	hash, err := HashPassword(testPassword)
	require.NoError(t, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = &identity.User{ID: id, Username: name, UserType: ut, DepartmentID: dept}
	d.hashes[id] = hash
}

func (d *directory) removeUser(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

func (d *directory) GetUser(_ context.Context, id string) (*identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *directory) FindCredential(_ context.Context, login string) (*identity.User, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, u := range d.users {
		if u.Username == login {
			cp := *u
			return &cp, d.hashes[id], nil
		}
	}
	return nil, "", nil
}

func (d *directory) ListChildIDs(_ context.Context, parentID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, p := range d.depts {
		if p == parentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (d *directory) ListAllIDs(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.depts))
	for id := range d.depts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *directory) AuthMarks(_ context.Context, ids []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	marks := []string{}
	for _, id := range ids {
		if m := d.marks[id]; m != "" {
			marks = append(marks, m)
		}
	}
	return marks, nil
}

type recorder struct {
	mu      sync.Mutex
	records []LoginRecord
}

func (r *recorder) RecordLogin(_ context.Context, rec *LoginRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

type sessionFixture struct {
	sessions *SessionManager
	dir      *directory
	enforcer *policy.Enforcer
	mr       *miniredis.Miniredis
	cache    *database.Cache
	cfg      config.JWTConfig
}

func defaultJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Algorithm:         "HS256",
		Issuer:            "goauthz-test",
		LoginDays:         1,
		RefreshExtraHours: 2,
		StrictSession:     true,
		MultiLogin:        true,
	}
}

func newSessionFixture(t *testing.T, mutate func(*config.JWTConfig), opts ...SessionOption) *sessionFixture {
	t.Helper()
	testkit.QuietLogger(t)

	cfg := defaultJWTConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, client := testkit.NewRedis(t)
	cache := database.NewCache(client, "")

	db := testkit.NewDB(t, &policy.Rule{})
	enforcer, err := policy.NewEnforcer(context.Background(), policy.NewStore(db))
	require.NoError(t, err)

	dir := newDirectory()
	dir.depts["D1"] = ""
	dir.depts["D2"] = "D1"
	dir.addUser(t, "u-1", "alice", identity.DeptAdmin, "D1")
	dir.addUser(t, "u-2", "bob", identity.NormalUser, "D2")

	jm, err := NewJWTManager(&cfg)
	require.NoError(t, err)

	builder := NewContextBuilder(dir, dir, enforcer, datascope.NewResolver(dir, dir))
	sessions := NewSessionManager(jm, cache, dir, dir, builder, &cfg, opts...)

	return &sessionFixture{sessions: sessions, dir: dir, enforcer: enforcer, mr: mr, cache: cache, cfg: cfg}
}

func (f *sessionFixture) login(t *testing.T, username string) *TokenPair {
	t.Helper()
	pair, err := f.sessions.Login(context.Background(), &Credentials{Username: username, Password: testPassword})
	require.NoError(t, err)
	return pair
}
