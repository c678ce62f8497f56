package policy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/casbin/casbin/v3/model"
)

// DefaultModel 内置的 RBAC 模型：
// 对象按 keyMatch2 匹配路径通配，动作按方法集合匹配（"GET,POST" 包含 POST）
const DefaultModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || keyMatch2(r.obj, p.obj)) && (r.act == p.act || methodMatch(r.act, p.act))
`

// ModelSource 模型文本的持久化来源
type ModelSource interface {
	// LoadModel 返回已保存的模型文本，未保存时返回空串
	LoadModel(ctx context.Context) (string, error)
	SaveModel(ctx context.Context, text string) error
}

// ParseModel 解析并校验模型文本
func ParseModel(text string) (model.Model, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultModel
	}
	m, err := model.NewModelFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid casbin model: %w", err)
	}
	for _, sec := range []string{"r", "p", "e", "m"} {
		if _, ok := m[sec]; !ok {
			return nil, fmt.Errorf("invalid casbin model: missing section %q", sec)
		}
	}
	return m, nil
}

// methodMatch 判断请求动作是否落在规则动作的集合内。
// 规则动作可以是单个方法、逗号或竖线分隔的方法集合、"*"，其余情况按整体正则匹配。
func methodMatch(requested, granted string) bool {
	if granted == "*" || strings.EqualFold(requested, granted) {
		return true
	}
	for _, m := range strings.FieldsFunc(granted, func(r rune) bool { return r == ',' || r == '|' }) {
		m = strings.TrimSpace(m)
		if m == "*" || strings.EqualFold(m, requested) {
			return true
		}
	}
	re := compileAction(granted)
	return re != nil && re.MatchString(requested)
}

// actionPatterns 规则动作到已编译正则的缓存，无法编译的动作记为 nil
var actionPatterns sync.Map

func compileAction(granted string) *regexp.Regexp {
	if v, ok := actionPatterns.Load(granted); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile("^(?:" + granted + ")$")
	if err != nil {
		re = nil
	}
	actionPatterns.Store(granted, re)
	return re
}

// methodMatchFunc 注册到 casbin 匹配器中的函数
func methodMatchFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("methodMatch: expected 2 arguments, got %d", len(args))
	}
	requested, ok1 := args[0].(string)
	granted, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("methodMatch: arguments must be strings")
	}
	return methodMatch(requested, granted), nil
}
