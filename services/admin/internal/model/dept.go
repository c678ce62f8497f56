package model

import "github.com/goauthz/pkg/dal"

// Department 部门模型
type Department struct {
	dal.Model
	ParentID string `gorm:"size:36;index" json:"parentId"` // 空表示顶级部门
	Name     string `gorm:"size:50;not null" json:"name"`
	Sort     int    `gorm:"default:0" json:"sort"`
	Status   int8   `gorm:"not null" json:"status"`
}

// TableName 表名
func (Department) TableName() string {
	return "sys_department"
}
