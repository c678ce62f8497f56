package model

import (
	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/identity"
)

// 状态
const (
	StatusDisabled int8 = 0
	StatusEnabled  int8 = 1
)

// User 用户模型
type User struct {
	dal.Model
	Username     string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password     string `gorm:"size:255;not null" json:"-"`
	Nickname     string `gorm:"size:50" json:"nickname"`
	Email        string `gorm:"size:100;index" json:"email"`
	Phone        string `gorm:"size:20;index" json:"phone"`
	Status       int8   `gorm:"not null" json:"status"`   // 1:正常 0:禁用，创建时需显式赋值
	UserType     int    `gorm:"not null" json:"userType"` // 0 为超级管理员，创建时需显式赋值
	DepartmentID string `gorm:"size:36;index" json:"departmentId"`
}

// TableName 表名
func (User) TableName() string {
	return "sys_user"
}

// Identity 转换为鉴权核心使用的用户
func (u *User) Identity() *identity.User {
	return &identity.User{
		ID:           u.ID,
		Username:     u.Username,
		UserType:     identity.UserType(u.UserType),
		DepartmentID: u.DepartmentID,
	}
}
