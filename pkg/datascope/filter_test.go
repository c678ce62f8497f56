package datascope

import (
	"testing"

	"github.com/goauthz/pkg/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticket struct {
	ID        int64 `gorm:"primaryKey"`
	DeptID    string
	CreatedBy string
}

func TestFilter(t *testing.T) {
	db := testkit.NewDB(t, &ticket{})
	require.NoError(t, db.Create(&[]ticket{
		{DeptID: "D1", CreatedBy: "u1"},
		{DeptID: "D2", CreatedBy: "u2"},
		{DeptID: "D3", CreatedBy: "u1"},
	}).Error)

	count := func(ds *DataScope, deptColumn, userColumn string) int64 {
		var n int64
		require.NoError(t, db.Model(&ticket{}).Scopes(Filter(ds, deptColumn, userColumn)).Count(&n).Error)
		return n
	}

	assert.EqualValues(t, 3, count(&DataScope{Scope: ScopeAll}, "dept_id", "created_by"))
	assert.EqualValues(t, 2, count(&DataScope{Scope: ScopeDeptAndChild, DepartmentIDs: []string{"D1", "D2"}}, "dept_id", "created_by"))
	assert.EqualValues(t, 2, count(&DataScope{Scope: ScopeSelfOnly, UserID: "u1"}, "dept_id", "created_by"))
	assert.EqualValues(t, 2, count(&DataScope{Scope: ScopeDeptAndChild, UserID: "u1"}, "dept_id", "created_by"),
		"no departments falls back to own rows")
	assert.EqualValues(t, 0, count(&DataScope{Scope: ScopeSelfOnly, UserID: "u1"}, "dept_id", ""))
	assert.EqualValues(t, 0, count(nil, "dept_id", "created_by"))
}
