// Package datascope 按用户类型与部门层级计算数据权限范围
package datascope

import (
	"context"
	"fmt"
	"sort"

	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"go.uber.org/zap"
)

// Hierarchy 部门层级解析
type Hierarchy struct {
	depts identity.DepartmentReader
}

// NewHierarchy 创建部门层级解析器
func NewHierarchy(depts identity.DepartmentReader) *Hierarchy {
	return &Hierarchy{depts: depts}
}

// DescendantIDs 返回部门的全部后代部门ID，includeSelf 为 true 时包含自身。
// 遍历时记录已访问节点，父子关系成环时跳过重复节点。
func (h *Hierarchy) DescendantIDs(ctx context.Context, deptID string, includeSelf bool) ([]string, error) {
	if deptID == "" {
		return []string{}, nil
	}

	visited := map[string]struct{}{deptID: {}}
	result := make([]string, 0, 8)
	if includeSelf {
		result = append(result, deptID)
	}

	queue := []string{deptID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parent := queue[0]
		queue = queue[1:]

		children, err := h.depts.ListChildIDs(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("list child departments of %s: %w", parent, err)
		}
		for _, child := range children {
			if _, seen := visited[child]; seen {
				logger.Warn("部门层级存在重复或环路，已跳过",
					zap.String("root", deptID),
					zap.String("parent", parent),
					zap.String("child", child),
				)
				continue
			}
			visited[child] = struct{}{}
			result = append(result, child)
			queue = append(queue, child)
		}
	}

	sort.Strings(result)
	return result, nil
}

// AllDepartmentIDs 返回全部有效部门ID
func (h *Hierarchy) AllDepartmentIDs(ctx context.Context) ([]string, error) {
	ids, err := h.depts.ListAllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out, nil
}
