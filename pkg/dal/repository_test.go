package dal

import (
	"context"
	"testing"

	"github.com/goauthz/pkg/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type note struct {
	Model
	Owner string `gorm:"size:36;index"`
	Title string `gorm:"size:50"`
}

func TestBaseRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBaseRepository[note](testkit.NewDB(t, &note{}))

	n := &note{Owner: "u-1", Title: "a"}
	require.NoError(t, repo.Create(ctx, n))
	assert.Len(t, n.ID, 36, "uuid assigned on create")

	fixed := &note{Model: Model{ID: "fixed"}, Owner: "u-2", Title: "b"}
	require.NoError(t, repo.Create(ctx, fixed))
	assert.Equal(t, "fixed", fixed.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &note{Owner: "u-1", Title: "c"}))
	}

	got, err := repo.FindByID(ctx, "fixed")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Title)

	missing, err := repo.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpdateFields(ctx, "fixed", map[string]interface{}{"title": "B"}))
	got, err = repo.FindByID(ctx, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Title)

	page, err := repo.FindPaged(ctx, map[string]interface{}{"owner": "u-1"}, &Pagination{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Len(t, page.Items, 1)

	owners, err := repo.Pluck(ctx, "owner", nil, WithScopes(func(db *gorm.DB) *gorm.DB {
		return db.Where("title = ?", "B")
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"u-2"}, owners)

	require.NoError(t, repo.Delete(ctx, "fixed"))
	n2, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n2)

	deleted, err := repo.FindByID(ctx, "fixed", WithUnscoped())
	require.NoError(t, err)
	assert.NotNil(t, deleted, "soft deleted row still readable unscoped")
}

func TestPaginationNormalize(t *testing.T) {
	p := &Pagination{Page: 0, PageSize: 1000}
	p.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, maxPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = &Pagination{Page: 3, PageSize: 0}
	p.Normalize()
	assert.Equal(t, defaultPageSize, p.PageSize)
	assert.Equal(t, 20, p.Offset())

	empty := NewPagedResult[note](nil, 0, p)
	assert.NotNil(t, empty.Items)
}
