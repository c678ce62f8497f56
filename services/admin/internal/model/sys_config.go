package model

import "github.com/goauthz/pkg/dal"

// SysConfig 系统参数配置
type SysConfig struct {
	dal.Model
	ConfigName  string `gorm:"column:config_name;size:100;not null" json:"configName"`
	ConfigKey   string `gorm:"column:config_key;size:100;not null;uniqueIndex" json:"configKey"`
	ConfigValue string `gorm:"column:config_value;type:text;not null" json:"configValue"`
	Remark      string `gorm:"column:remark;size:500" json:"remark"`
}

// TableName 返回表名
func (SysConfig) TableName() string {
	return "sys_config"
}

// All 需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{}, &Department{}, &Role{}, &Permission{}, &LoginLog{}, &SysConfig{},
	}
}
