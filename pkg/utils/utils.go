package utils

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// LoginKind 登录名类型
type LoginKind int

const (
	LoginUsername LoginKind = iota
	LoginEmail
	LoginPhone
)

// ClassifyLogin 判断登录名是邮箱、手机号还是用户名
func ClassifyLogin(login string) LoginKind {
	switch {
	case IsEmail(login):
		return LoginEmail
	case IsPhone(login):
		return LoginPhone
	default:
		return LoginUsername
	}
}

// IsEmail 验证邮箱
func IsEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsPhone 验证手机号
func IsPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Truncate 按字符截断，结果不超过 max 个字符
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Contains 检查切片是否包含元素
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// Unique 去重并保持原有顺序
func Unique[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	out := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
