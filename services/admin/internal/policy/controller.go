package policy

import (
	"context"
	"strings"

	pkgAuth "github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/middleware"
	pkgPolicy "github.com/goauthz/pkg/policy"
	"github.com/goauthz/pkg/response"
	"github.com/goauthz/pkg/router"
	"github.com/goauthz/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Controller 策略管理控制器
type Controller struct {
	Enforcer  *pkgPolicy.Enforcer
	Scopes    *datascope.Resolver
	Sessions  *pkgAuth.SessionManager
	Roles     identity.RoleReader
	Publisher pkgPolicy.Publisher // 可为空
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api/casbin"
}

// Routes 路由
func (c *Controller) Routes() []router.Route {
	login := []fiber.Handler{middleware.RequireLogin(c.Sessions)}
	route := func(method, path string, h fiber.Handler) router.Route {
		return router.Route{Method: method, Path: path, Handler: h, Middlewares: login}
	}

	return []router.Route{
		{Method: fiber.MethodGet, Path: "/data-scope-info", Handler: c.dataScopeInfo},
		route(fiber.MethodGet, "/data-scope", c.dataScope),
		route(fiber.MethodGet, "/check-data-access", c.checkDataAccess),

		route(fiber.MethodGet, "/policies", c.listPolicies),
		route(fiber.MethodPost, "/policies", c.addPolicy),
		route(fiber.MethodDelete, "/policies", c.removePolicy),
		route(fiber.MethodGet, "/groupings", c.listGroupings),

		route(fiber.MethodGet, "/users/:userId/roles", c.userRoles),
		route(fiber.MethodPost, "/users/:userId/roles", c.addUserRole),
		route(fiber.MethodPut, "/users/:userId/roles", c.setUserRoles),
		route(fiber.MethodDelete, "/users/:userId/roles/:role", c.removeUserRole),
		route(fiber.MethodDelete, "/users/:userId", c.deleteUser),

		route(fiber.MethodGet, "/roles/:role/users", c.roleUsers),
		route(fiber.MethodGet, "/roles/:role/permissions", c.rolePermissions),
		route(fiber.MethodPut, "/roles/:role/permissions", c.setRolePermissions),
		route(fiber.MethodDelete, "/roles/:role", c.deleteRole),

		route(fiber.MethodPost, "/check", c.check),
		route(fiber.MethodPost, "/reload", c.reload),
		route(fiber.MethodGet, "/model", c.getModel),
		route(fiber.MethodPut, "/model", c.updateModel),
		route(fiber.MethodPost, "/model/reload", c.reloadModel),
	}
}

func (c *Controller) dataScopeInfo(ctx *fiber.Ctx) error {
	return response.Success(ctx, datascope.Describe())
}

func (c *Controller) dataScope(ctx *fiber.Ctx) error {
	user := middleware.GetUser(ctx)
	ds, err := c.Scopes.GetDataScope(ctx.UserContext(), user.ID)
	if err != nil {
		return apperrors.Internal("获取数据权限失败", err)
	}
	return response.Success(ctx, ds)
}

func (c *Controller) checkDataAccess(ctx *fiber.Ctx) error {
	target := ctx.Query("target_user_id")
	if target == "" {
		return apperrors.BadRequest("target_user_id 不能为空")
	}
	ok, err := c.Scopes.CanAccessUserData(ctx.UserContext(), middleware.GetUserID(ctx), target)
	if err != nil {
		return apperrors.Internal("数据权限判断失败", err)
	}
	return response.Success(ctx, fiber.Map{"canAccess": ok})
}

func (c *Controller) listPolicies(ctx *fiber.Ctx) error {
	if role := ctx.Query("role"); role != "" {
		perms, err := c.Enforcer.GetPermissionsForRole(role)
		if err != nil {
			return apperrors.Internal("", err)
		}
		return response.Success(ctx, perms)
	}
	rules, err := c.Enforcer.GetPolicies()
	if err != nil {
		return apperrors.Internal("", err)
	}
	return response.Success(ctx, rules)
}

func (c *Controller) addPolicy(ctx *fiber.Ctx) error {
	var req PolicyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	if req.Role == "" || req.Obj == "" || req.Act == "" {
		return apperrors.BadRequest("role、obj、act 不能为空")
	}
	added, err := c.Enforcer.AddPolicy(ctx.UserContext(), req.Role, req.Obj, req.Act)
	if err != nil {
		return apperrors.Internal("添加策略失败", err)
	}
	c.invalidateRole(ctx.UserContext(), req.Role)
	return response.Success(ctx, fiber.Map{"added": added})
}

// removePolicy act 为空时删除角色在该资源上的全部规则
func (c *Controller) removePolicy(ctx *fiber.Ctx) error {
	var req PolicyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	if req.Role == "" || req.Obj == "" {
		return apperrors.BadRequest("role、obj 不能为空")
	}

	var removed int
	if req.Act == "" {
		n, err := c.Enforcer.RemovePolicyFiltered(ctx.UserContext(), req.Role, req.Obj)
		if err != nil {
			return apperrors.Internal("删除策略失败", err)
		}
		removed = n
	} else {
		ok, err := c.Enforcer.RemovePolicy(ctx.UserContext(), req.Role, req.Obj, req.Act)
		if err != nil {
			return apperrors.Internal("删除策略失败", err)
		}
		if ok {
			removed = 1
		}
	}
	c.invalidateRole(ctx.UserContext(), req.Role)
	return response.Success(ctx, fiber.Map{"removed": removed})
}

func (c *Controller) listGroupings(ctx *fiber.Ctx) error {
	rules, err := c.Enforcer.GetGroupings()
	if err != nil {
		return apperrors.Internal("", err)
	}
	return response.Success(ctx, rules)
}

func (c *Controller) userRoles(ctx *fiber.Ctx) error {
	roles, err := c.Enforcer.GetRolesForUser(ctx.Params("userId"))
	if err != nil {
		return apperrors.Internal("", err)
	}
	return response.Success(ctx, roles)
}

func (c *Controller) addUserRole(ctx *fiber.Ctx) error {
	userID := ctx.Params("userId")
	var req RoleRequest
	if err := ctx.BodyParser(&req); err != nil || req.Role == "" {
		return apperrors.BadRequest("role 不能为空")
	}
	if err := c.requireRoles(ctx.UserContext(), req.Role); err != nil {
		return err
	}
	added, err := c.Enforcer.AddGrouping(ctx.UserContext(), userID, req.Role)
	if err != nil {
		return apperrors.Internal("分配角色失败", err)
	}
	c.invalidate(ctx.UserContext(), userID)
	return response.Success(ctx, fiber.Map{"added": added})
}

func (c *Controller) setUserRoles(ctx *fiber.Ctx) error {
	userID := ctx.Params("userId")
	var req RolesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	req.Roles = utils.Unique(req.Roles)
	if err := c.requireRoles(ctx.UserContext(), req.Roles...); err != nil {
		return err
	}
	added, removed, err := c.Enforcer.SetRolesForUser(ctx.UserContext(), userID, req.Roles)
	if err != nil {
		return apperrors.Internal("设置用户角色失败", err)
	}
	c.invalidate(ctx.UserContext(), userID)
	return response.Success(ctx, ChangeResult{Added: added, Removed: removed})
}

func (c *Controller) removeUserRole(ctx *fiber.Ctx) error {
	userID := ctx.Params("userId")
	removed, err := c.Enforcer.RemoveGrouping(ctx.UserContext(), userID, ctx.Params("role"))
	if err != nil {
		return apperrors.Internal("移除角色失败", err)
	}
	c.invalidate(ctx.UserContext(), userID)
	return response.Success(ctx, fiber.Map{"removed": removed})
}

func (c *Controller) deleteUser(ctx *fiber.Ctx) error {
	userID := ctx.Params("userId")
	if err := c.Enforcer.DeleteUser(ctx.UserContext(), userID); err != nil {
		return apperrors.Internal("删除用户授权失败", err)
	}
	c.invalidate(ctx.UserContext(), userID)
	return response.Success(ctx, nil)
}

func (c *Controller) roleUsers(ctx *fiber.Ctx) error {
	users, err := c.Enforcer.GetUsersForRole(ctx.Params("role"))
	if err != nil {
		return apperrors.Internal("", err)
	}
	return response.Success(ctx, users)
}

func (c *Controller) rolePermissions(ctx *fiber.Ctx) error {
	permType, err := identity.ParsePermissionType(ctx.Query("type", string(identity.PermissionMenu)))
	if err != nil {
		return apperrors.BadRequest("权限类型错误")
	}
	ids, err := c.Enforcer.GetRolePermissionIDs(ctx.Params("role"), permType)
	if err != nil {
		return apperrors.Internal("", err)
	}
	return response.Success(ctx, ids)
}

func (c *Controller) setRolePermissions(ctx *fiber.Ctx) error {
	role := ctx.Params("role")
	var req PermissionsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	permType, err := identity.ParsePermissionType(req.Type)
	if err != nil {
		return apperrors.BadRequest("权限类型错误")
	}
	if permType == identity.PermissionAPI {
		for _, id := range req.IDs {
			if !validAPIPermission(id) {
				return apperrors.BadRequest("接口权限格式应为 METHODS:/path: " + id)
			}
		}
	}

	added, removed, err := c.Enforcer.SetRolePermissions(ctx.UserContext(), role, req.IDs, permType)
	if err != nil {
		return apperrors.Internal("设置角色权限失败", err)
	}
	c.invalidateRole(ctx.UserContext(), role)
	return response.Success(ctx, ChangeResult{Added: added, Removed: removed})
}

func (c *Controller) deleteRole(ctx *fiber.Ctx) error {
	role := ctx.Params("role")
	users, err := c.Enforcer.GetUsersForRole(role)
	if err != nil {
		return apperrors.Internal("", err)
	}
	if err := c.Enforcer.DeleteRole(ctx.UserContext(), role); err != nil {
		return apperrors.Internal("删除角色失败", err)
	}
	c.invalidate(ctx.UserContext(), users...)
	return response.Success(ctx, nil)
}

func (c *Controller) check(ctx *fiber.Ctx) error {
	var req CheckRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	if req.Obj == "" || req.Act == "" {
		return apperrors.BadRequest("obj、act 不能为空")
	}
	if req.Sub == "" {
		req.Sub = middleware.GetUserID(ctx)
	}
	ok, err := c.Enforcer.CheckAPIPermission(req.Sub, req.Obj, req.Act)
	if err != nil {
		return apperrors.Internal("权限判断失败", err)
	}
	return response.Success(ctx, fiber.Map{"allowed": ok})
}

func (c *Controller) reload(ctx *fiber.Ctx) error {
	if err := c.Enforcer.ReloadPolicy(ctx.UserContext()); err != nil {
		return apperrors.Internal("重新加载策略失败", err)
	}
	c.publish(ctx.UserContext(), pkgPolicy.EventPolicyChanged)
	return response.SuccessWithMessage(ctx, "策略已重新加载", nil)
}

func (c *Controller) getModel(ctx *fiber.Ctx) error {
	return response.Success(ctx, fiber.Map{"text": c.Enforcer.ModelText()})
}

func (c *Controller) updateModel(ctx *fiber.Ctx) error {
	var req ModelRequest
	if err := ctx.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return apperrors.BadRequest("模型内容不能为空")
	}
	if _, err := pkgPolicy.ParseModel(req.Text); err != nil {
		return apperrors.BadRequest("模型格式错误: " + err.Error())
	}
	if err := c.Enforcer.UpdateModel(ctx.UserContext(), req.Text); err != nil {
		return apperrors.Internal("更新模型失败", err)
	}
	return response.SuccessWithMessage(ctx, "模型已更新", nil)
}

func (c *Controller) reloadModel(ctx *fiber.Ctx) error {
	if err := c.Enforcer.ReloadModel(ctx.UserContext()); err != nil {
		return apperrors.Internal("重新加载模型失败", err)
	}
	c.publish(ctx.UserContext(), pkgPolicy.EventModelChanged)
	return response.SuccessWithMessage(ctx, "模型已重新加载", nil)
}

// requireRoles 角色必须存在且启用
func (c *Controller) requireRoles(ctx context.Context, roles ...string) error {
	for _, role := range roles {
		ok, err := c.Roles.RoleExists(ctx, role)
		if err != nil {
			return apperrors.Internal("", err)
		}
		if !ok {
			return apperrors.BadRequest("角色不存在: " + role)
		}
	}
	return nil
}

// invalidateRole 清除角色下全部用户的鉴权缓存，规则主体也可能直接是用户 ID
func (c *Controller) invalidateRole(ctx context.Context, role string) {
	users, err := c.Enforcer.GetUsersForRole(role)
	if err != nil {
		logger.Error("获取角色用户失败", zap.String("role", role), zap.Error(err))
	}
	c.invalidate(ctx, append(users, role)...)
}

// invalidate 缓存清除失败只记录日志，缓存过期后自然重建
func (c *Controller) invalidate(ctx context.Context, userIDs ...string) {
	if err := c.Sessions.InvalidateUser(ctx, userIDs...); err != nil {
		logger.Error("清除用户鉴权缓存失败", zap.Strings("userIds", userIDs), zap.Error(err))
	}
}

func (c *Controller) publish(ctx context.Context, event string) {
	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(ctx, event); err != nil {
		logger.Warn("发送策略变更通知失败", zap.String("event", event), zap.Error(err))
	}
}

func validAPIPermission(id string) bool {
	idx := strings.Index(id, ":")
	return idx > 0 && idx < len(id)-1 && strings.HasPrefix(id[idx+1:], "/")
}
