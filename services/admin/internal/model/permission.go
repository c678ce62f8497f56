package model

import "github.com/goauthz/pkg/dal"

// Permission 菜单与按钮权限
type Permission struct {
	dal.Model
	ParentID string `gorm:"size:36;index" json:"parentId"`
	Name     string `gorm:"size:50;not null" json:"name"`
	Type     string `gorm:"size:10;not null" json:"type"` // menu | button
	AuthMark string `gorm:"size:100;index" json:"authMark"`
	Path     string `gorm:"size:255" json:"path"`
	Method   string `gorm:"size:50" json:"method"`
	Sort     int    `gorm:"default:0" json:"sort"`
}

// TableName 表名
func (Permission) TableName() string {
	return "sys_permission"
}
