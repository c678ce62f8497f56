package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v3"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"go.uber.org/zap"
)

// 跨节点广播的变更事件
const (
	EventPolicyChanged = "policy.changed"
	EventModelChanged  = "model.changed"
)

// Publisher 变更通知发布者
type Publisher interface {
	Publish(ctx context.Context, event string) error
}

// Permission 角色持有的一条授权
type Permission struct {
	Obj string `json:"obj"`
	Act string `json:"act"`
}

// UserPermissions 用户经由角色获得的全部授权
type UserPermissions struct {
	Roles   []string `json:"roles"`
	Menus   []string `json:"menus"`
	Buttons []string `json:"buttons"`
	APIs    []string `json:"apis"` // "GET,POST:/path" 形式
}

// Enforcer 内存策略引擎，以 Store 为唯一数据源。
// 每次变更先在事务中写入 Store，提交后再应用到内存。
type Enforcer struct {
	mu        sync.Mutex // 串行化变更与重载
	store     *Store
	current   atomic.Pointer[casbin.SyncedEnforcer]
	modelText atomic.Value // string
	models    ModelSource
	publisher Publisher
}

// Option 引擎选项
type Option func(*Enforcer)

// WithPublisher 设置跨节点变更通知
func WithPublisher(p Publisher) Option {
	return func(e *Enforcer) { e.publisher = p }
}

// WithModelSource 设置模型文本来源
func WithModelSource(src ModelSource) Option {
	return func(e *Enforcer) { e.models = src }
}

// NewEnforcer 创建策略引擎并从存储加载模型与策略
func NewEnforcer(ctx context.Context, store *Store, opts ...Option) (*Enforcer, error) {
	e := &Enforcer{store: store}
	for _, opt := range opts {
		opt(e)
	}

	text := DefaultModel
	if e.models != nil {
		saved, err := e.models.LoadModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("load casbin model: %w", err)
		}
		if strings.TrimSpace(saved) != "" {
			text = saved
		}
	}
	e.modelText.Store(text)

	if err := e.ReloadPolicy(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// SetPublisher 在引擎创建后设置通知发布者
func (e *Enforcer) SetPublisher(p Publisher) {
	e.mu.Lock()
	e.publisher = p
	e.mu.Unlock()
}

// ModelText 当前模型文本
func (e *Enforcer) ModelText() string {
	return e.modelText.Load().(string)
}

// build 用给定模型与规则构建新的内存引擎
func build(text string, rules []Rule) (*casbin.SyncedEnforcer, error) {
	m, err := ParseModel(text)
	if err != nil {
		return nil, err
	}
	se, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	se.AddFunction("methodMatch", methodMatchFunc)

	for i := range rules {
		vals := rules[i].Values()
		switch rules[i].Ptype {
		case PtypePolicy:
			if len(vals) < 3 {
				logger.Warn("跳过字段不足的策略规则", zap.Int64("id", rules[i].ID))
				continue
			}
			if _, err := se.AddPolicy(vals[0], vals[1], vals[2]); err != nil {
				return nil, fmt.Errorf("load rule %d: %w", rules[i].ID, err)
			}
		case PtypeGrouping:
			if len(vals) < 2 {
				logger.Warn("跳过字段不足的分组规则", zap.Int64("id", rules[i].ID))
				continue
			}
			if _, err := se.AddGroupingPolicy(vals[0], vals[1]); err != nil {
				return nil, fmt.Errorf("load rule %d: %w", rules[i].ID, err)
			}
		}
	}
	return se, nil
}

// ReloadPolicy 从存储重新加载全部有效规则，构建完成后整体替换内存引擎
func (e *Enforcer) ReloadPolicy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx)
}

func (e *Enforcer) reloadLocked(ctx context.Context) error {
	rules, err := e.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load casbin rules: %w", err)
	}
	se, err := build(e.ModelText(), rules)
	if err != nil {
		return err
	}
	e.current.Store(se)
	logger.Info("策略已加载", zap.Int("rules", len(rules)))
	return nil
}

// ReloadModel 从模型来源重新读取模型并重建引擎
func (e *Enforcer) ReloadModel(ctx context.Context) error {
	if e.models == nil {
		return e.ReloadPolicy(ctx)
	}
	text, err := e.models.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("load casbin model: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		text = DefaultModel
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.ModelText()
	e.modelText.Store(text)
	if err := e.reloadLocked(ctx); err != nil {
		e.modelText.Store(prev)
		return err
	}
	return nil
}

// UpdateModel 校验并保存新模型，成功后立即生效并通知其他节点
func (e *Enforcer) UpdateModel(ctx context.Context, text string) error {
	if _, err := ParseModel(text); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rules, err := e.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load casbin rules: %w", err)
	}
	se, err := build(text, rules)
	if err != nil {
		return err
	}
	if e.models != nil {
		if err := e.models.SaveModel(ctx, text); err != nil {
			return fmt.Errorf("save casbin model: %w", err)
		}
	}
	e.modelText.Store(text)
	e.current.Store(se)
	e.publish(ctx, EventModelChanged)
	return nil
}

// mutate 事务写入存储后应用到内存；内存应用失败时从存储整体重载
func (e *Enforcer) mutate(ctx context.Context, write func(tx *Store) error, apply func(se *casbin.SyncedEnforcer) error) error {
	if err := e.store.Transaction(ctx, write); err != nil {
		return err
	}
	if err := apply(e.current.Load()); err != nil {
		logger.Error("策略内存同步失败，从存储重新加载", zap.Error(err))
		if rerr := e.reloadLocked(ctx); rerr != nil {
			return fmt.Errorf("apply policy: %v; reload: %w", err, rerr)
		}
	}
	e.publish(ctx, EventPolicyChanged)
	return nil
}

func (e *Enforcer) publish(ctx context.Context, event string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		logger.Warn("策略变更通知发送失败", zap.String("event", event), zap.Error(err))
	}
}

// Enforce 判断 sub 对 obj 执行 act 是否被允许
func (e *Enforcer) Enforce(sub, obj, act string) (bool, error) {
	return e.current.Load().Enforce(sub, obj, act)
}

// CheckAPIPermission 先按用户直接授权判断，再逐个角色判断
func (e *Enforcer) CheckAPIPermission(user, path, method string) (bool, error) {
	ok, err := e.Enforce(user, path, method)
	if err != nil || ok {
		return ok, err
	}
	roles, err := e.GetRolesForUser(user)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		ok, err := e.Enforce(role, path, method)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasPolicy 规则是否存在
func (e *Enforcer) HasPolicy(sub, obj, act string) (bool, error) {
	rules, err := e.current.Load().GetFilteredPolicy(0, sub, obj, act)
	if err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

// HasGrouping 用户是否直接拥有角色
func (e *Enforcer) HasGrouping(user, role string) (bool, error) {
	rules, err := e.current.Load().GetFilteredGroupingPolicy(0, user, role)
	if err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

// AddPolicy 添加授权，规则已存在时返回 false
func (e *Enforcer) AddPolicy(ctx context.Context, sub, obj, act string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.HasPolicy(sub, obj, act)
	if err != nil || exists {
		return false, err
	}
	err = e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.Append(ctx, PtypePolicy, sub, obj, act)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.AddPolicy(sub, obj, act)
			return err
		})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemovePolicy 撤销授权，规则不存在时返回 false
func (e *Enforcer) RemovePolicy(ctx context.Context, sub, obj, act string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.HasPolicy(sub, obj, act)
	if err != nil || !exists {
		return false, err
	}
	err = e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.SoftDelete(ctx, PtypePolicy, 0, sub, obj, act)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.RemovePolicy(sub, obj, act)
			return err
		})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemovePolicyFiltered 撤销 sub 在 obj 上的全部授权（任意动作），obj 为空时撤销 sub 的全部授权
func (e *Enforcer) RemovePolicyFiltered(ctx context.Context, sub, obj string) (int, error) {
	if sub == "" {
		return 0, fmt.Errorf("remove filtered policy: subject required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	matched, err := e.current.Load().GetFilteredPolicy(0, sub, obj)
	if err != nil || len(matched) == 0 {
		return 0, err
	}
	err = e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.SoftDelete(ctx, PtypePolicy, 0, sub, obj)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.RemoveFilteredPolicy(0, sub, obj)
			return err
		})
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// AddGrouping 为用户添加角色，已存在时返回 false
func (e *Enforcer) AddGrouping(ctx context.Context, user, role string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.HasGrouping(user, role)
	if err != nil || exists {
		return false, err
	}
	err = e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.Append(ctx, PtypeGrouping, user, role)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.AddGroupingPolicy(user, role)
			return err
		})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveGrouping 移除用户的角色，不存在时返回 false
func (e *Enforcer) RemoveGrouping(ctx context.Context, user, role string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exists, err := e.HasGrouping(user, role)
	if err != nil || !exists {
		return false, err
	}
	err = e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.SoftDelete(ctx, PtypeGrouping, 0, user, role)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.RemoveGroupingPolicy(user, role)
			return err
		})
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRolesForUser 用户直接拥有的角色
func (e *Enforcer) GetRolesForUser(user string) ([]string, error) {
	return e.current.Load().GetRolesForUser(user)
}

// GetUsersForRole 拥有该角色的用户
func (e *Enforcer) GetUsersForRole(role string) ([]string, error) {
	return e.current.Load().GetUsersForRole(role)
}

// GetPermissionsForRole 角色的全部授权
func (e *Enforcer) GetPermissionsForRole(role string) ([]Permission, error) {
	rules, err := e.current.Load().GetFilteredPolicy(0, role)
	if err != nil {
		return nil, err
	}
	perms := make([]Permission, 0, len(rules))
	for _, r := range rules {
		if len(r) < 3 {
			continue
		}
		perms = append(perms, Permission{Obj: r[1], Act: r[2]})
	}
	return perms, nil
}

// GetRolePermissionIDs 按权限类型返回角色持有的权限标识。
// 菜单和按钮返回权限ID，接口返回 "METHODS:path"。
func (e *Enforcer) GetRolePermissionIDs(role string, permType identity.PermissionType) ([]string, error) {
	perms, err := e.GetPermissionsForRole(role)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		if classify(p.Act) == permType {
			ids = append(ids, permissionID(permType, p))
		}
	}
	return ids, nil
}

// classify 按动作字段区分权限类型
func classify(act string) identity.PermissionType {
	switch identity.PermissionType(act) {
	case identity.PermissionMenu:
		return identity.PermissionMenu
	case identity.PermissionButton:
		return identity.PermissionButton
	default:
		return identity.PermissionAPI
	}
}

func permissionID(permType identity.PermissionType, p Permission) string {
	if permType == identity.PermissionAPI {
		return p.Act + ":" + p.Obj
	}
	return p.Obj
}

// ruleFor 权限标识转换为 (obj, act)
func ruleFor(permType identity.PermissionType, id string) (string, string, error) {
	if permType != identity.PermissionAPI {
		return id, string(permType), nil
	}
	idx := strings.Index(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", fmt.Errorf("invalid api permission %q, want METHODS:/path", id)
	}
	return id[idx+1:], id[:idx], nil
}

// SetRolePermissions 将角色某一类型的权限整体替换为 ids，其他类型不变。
// 存储写入在单个事务内完成。
func (e *Enforcer) SetRolePermissions(ctx context.Context, role string, ids []string, permType identity.PermissionType) (added, removed []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.GetRolePermissionIDs(role, permType)
	if err != nil {
		return nil, nil, err
	}
	added, removed = diff(current, ids)
	if len(added) == 0 && len(removed) == 0 {
		return added, removed, nil
	}

	type rule struct{ obj, act string }
	toAdd := make([]rule, 0, len(added))
	for _, id := range added {
		obj, act, err := ruleFor(permType, id)
		if err != nil {
			return nil, nil, err
		}
		toAdd = append(toAdd, rule{obj, act})
	}
	toRemove := make([]rule, 0, len(removed))
	for _, id := range removed {
		obj, act, err := ruleFor(permType, id)
		if err != nil {
			return nil, nil, err
		}
		toRemove = append(toRemove, rule{obj, act})
	}

	err = e.mutate(ctx,
		func(tx *Store) error {
			for _, r := range toAdd {
				if _, err := tx.Append(ctx, PtypePolicy, role, r.obj, r.act); err != nil {
					return err
				}
			}
			for _, r := range toRemove {
				if _, err := tx.SoftDelete(ctx, PtypePolicy, 0, role, r.obj, r.act); err != nil {
					return err
				}
			}
			return nil
		},
		func(se *casbin.SyncedEnforcer) error {
			for _, r := range toAdd {
				if _, err := se.AddPolicy(role, r.obj, r.act); err != nil {
					return err
				}
			}
			for _, r := range toRemove {
				if _, err := se.RemovePolicy(role, r.obj, r.act); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("角色权限已更新",
		zap.String("role", role),
		zap.String("type", string(permType)),
		zap.Strings("added", added),
		zap.Strings("removed", removed),
	)
	return added, removed, nil
}

// SetRolesForUser 将用户的角色整体替换为 roles
func (e *Enforcer) SetRolesForUser(ctx context.Context, user string, roles []string) (added, removed []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.GetRolesForUser(user)
	if err != nil {
		return nil, nil, err
	}
	added, removed = diff(current, roles)
	if len(added) == 0 && len(removed) == 0 {
		return added, removed, nil
	}

	err = e.mutate(ctx,
		func(tx *Store) error {
			for _, role := range added {
				if _, err := tx.Append(ctx, PtypeGrouping, user, role); err != nil {
					return err
				}
			}
			for _, role := range removed {
				if _, err := tx.SoftDelete(ctx, PtypeGrouping, 0, user, role); err != nil {
					return err
				}
			}
			return nil
		},
		func(se *casbin.SyncedEnforcer) error {
			for _, role := range added {
				if _, err := se.AddGroupingPolicy(user, role); err != nil {
					return err
				}
			}
			for _, role := range removed {
				if _, err := se.RemoveGroupingPolicy(user, role); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

// DeleteRole 删除角色：撤销角色的全部授权以及所有用户与该角色的关联
func (e *Enforcer) DeleteRole(ctx context.Context, role string) error {
	if role == "" {
		return fmt.Errorf("delete role: role required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mutate(ctx,
		func(tx *Store) error {
			if _, err := tx.SoftDelete(ctx, PtypeGrouping, 1, role); err != nil {
				return err
			}
			_, err := tx.SoftDelete(ctx, PtypePolicy, 0, role)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			if _, err := se.RemoveFilteredGroupingPolicy(1, role); err != nil {
				return err
			}
			_, err := se.RemoveFilteredPolicy(0, role)
			return err
		})
}

// DeleteUser 移除用户的全部角色关联
func (e *Enforcer) DeleteUser(ctx context.Context, user string) error {
	if user == "" {
		return fmt.Errorf("delete user: user required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mutate(ctx,
		func(tx *Store) error {
			_, err := tx.SoftDelete(ctx, PtypeGrouping, 0, user)
			return err
		},
		func(se *casbin.SyncedEnforcer) error {
			_, err := se.RemoveFilteredGroupingPolicy(0, user)
			return err
		})
}

// GetPolicies 全部授权规则
func (e *Enforcer) GetPolicies() ([][]string, error) {
	return e.current.Load().GetPolicy()
}

// GetGroupings 全部分组规则
func (e *Enforcer) GetGroupings() ([][]string, error) {
	return e.current.Load().GetGroupingPolicy()
}

// GetUserPermissions 汇总用户直接授权与各角色授权
func (e *Enforcer) GetUserPermissions(user string) (*UserPermissions, error) {
	roles, err := e.GetRolesForUser(user)
	if err != nil {
		return nil, err
	}

	result := &UserPermissions{Roles: roles}
	menus, buttons, apis := newOrderedSet(), newOrderedSet(), newOrderedSet()

	subjects := append([]string{user}, roles...)
	for _, sub := range subjects {
		perms, err := e.GetPermissionsForRole(sub)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			switch classify(p.Act) {
			case identity.PermissionMenu:
				menus.add(p.Obj)
			case identity.PermissionButton:
				buttons.add(p.Obj)
			default:
				apis.add(p.Act + ":" + p.Obj)
			}
		}
	}
	result.Menus, result.Buttons, result.APIs = menus.items, buttons.items, apis.items
	sort.Strings(result.Menus)
	sort.Strings(result.Buttons)
	sort.Strings(result.APIs)
	return result, nil
}

// diff 返回 want 相对 have 需要新增与删除的元素
func diff(have, want []string) (added, removed []string) {
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, w := range want {
		if _, dup := wantSet[w]; dup {
			continue
		}
		wantSet[w] = struct{}{}
		if _, ok := haveSet[w]; !ok {
			added = append(added, w)
		}
	}
	for _, h := range have {
		if _, ok := wantSet[h]; !ok {
			removed = append(removed, h)
		}
	}
	return added, removed
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
