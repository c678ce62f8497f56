package policy

import (
	"context"
	"testing"

	"github.com/goauthz/pkg/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotExportImport(t *testing.T) {
	ctx := context.Background()
	testkit.QuietLogger(t)

	// 快照表的清空在 gorm-adapter 事务外执行，需要多连接的文件库
	db := testkit.NewFileDB(t, &Rule{})
	e, err := NewEnforcer(ctx, NewStore(db))
	require.NoError(t, err)

	_, err = e.AddPolicy(ctx, "r1", "/api/a", "GET")
	require.NoError(t, err)
	_, err = e.AddGrouping(ctx, "u1", "r1")
	require.NoError(t, err)

	snap := NewSnapshot(db, "casbin_snapshot_test")
	n, err := snap.Export(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 导出后改动策略，再从快照恢复
	require.NoError(t, e.DeleteRole(ctx, "r1"))
	_, err = e.AddPolicy(ctx, "r2", "/api/b", "POST")
	require.NoError(t, err)

	n, err = snap.Import(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := e.CheckAPIPermission("u1", "/api/a", "GET")
	require.NoError(t, err)
	assert.True(t, ok)

	perms, err := e.GetPermissionsForRole("r2")
	require.NoError(t, err)
	assert.Empty(t, perms)

	rules, err := e.store.LoadActive(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}
