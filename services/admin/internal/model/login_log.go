package model

import "github.com/goauthz/pkg/dal"

// LoginLog 登录日志
type LoginLog struct {
	dal.Model
	UserID    string `gorm:"size:36;index" json:"userId"`
	Username  string `gorm:"size:50" json:"username"`
	SessionID string `gorm:"size:36;index" json:"sessionId"`
	IP        string `gorm:"size:50" json:"ip"`
	UserAgent string `gorm:"size:255" json:"userAgent"`
	Status    int8   `gorm:"not null" json:"status"` // 1:成功 0:失败
	Message   string `gorm:"size:255" json:"message"`
	LoginTime int64  `gorm:"autoCreateTime" json:"loginTime"`
}

// TableName 表名
func (LoginLog) TableName() string {
	return "sys_login_log"
}
