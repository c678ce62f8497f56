package datascope

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter 按数据权限过滤查询，用于 db.Scopes(...)。
// deptColumn 为部门字段，userColumn 为归属用户字段，为空表示该表没有对应字段。
func Filter(ds *DataScope, deptColumn, userColumn string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if ds == nil {
			return db.Where("1 = 0")
		}

		switch ds.Scope {
		case ScopeAll:
			return db
		case ScopeDeptAndChild, ScopeDeptOnly:
			if deptColumn != "" && len(ds.DepartmentIDs) > 0 {
				return db.Where(clause.IN{Column: clause.Column{Name: deptColumn}, Values: toValues(ds.DepartmentIDs)})
			}
			return selfFilter(db, ds, userColumn)
		default:
			return selfFilter(db, ds, userColumn)
		}
	}
}

func selfFilter(db *gorm.DB, ds *DataScope, userColumn string) *gorm.DB {
	if userColumn == "" || ds.UserID == "" {
		return db.Where("1 = 0")
	}
	return db.Where(clause.Eq{Column: clause.Column{Name: userColumn}, Value: ds.UserID})
}

func toValues(ids []string) []interface{} {
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return vals
}
