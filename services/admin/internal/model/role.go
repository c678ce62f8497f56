package model

import "github.com/goauthz/pkg/dal"

// Role 角色模型，Code 即策略中的角色主体
type Role struct {
	dal.Model
	Code        string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name        string `gorm:"size:50;not null" json:"name"`
	Status      int8   `gorm:"not null" json:"status"`
	Sort        int    `gorm:"default:0" json:"sort"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Role) TableName() string {
	return "sys_role"
}
