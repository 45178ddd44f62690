package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

const principalKey = "principal"

// 角色组
const (
	GroupManager = "auth-manager" // 部门经理、HRD、超级管理员
	GroupHrd     = "auth-hrd"     // HRD、超级管理员
	GroupAdmin   = "auth-admin"   // 超级管理员
)

// DepartmentDirectory 部门经理关系目录
type DepartmentDirectory interface {
	ManagedDepartments(ctx context.Context, userID string) ([]string, error)
}

// AuthMiddleware JWT 认证中间件; directory 不为空时部门经理关系以目录为准
func AuthMiddleware(validator *TokenValidator, directory DepartmentDirectory, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing authorization header",
			})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid token",
				"detail":  err.Error(),
			})
			c.Abort()
			return
		}

		p := claims.Principal()
		if directory != nil {
			depts, err := directory.ManagedDepartments(c.Request.Context(), p.UserID)
			if err != nil {
				// 目录不可用时退回 token 中的部门
				if logger != nil {
					logger.WithError(err).WithField("user_id", p.UserID).Warn("Department directory lookup failed")
				}
			} else {
				p.ManagedDepartments = depts
				p.DepartmentManager = len(depts) > 0
			}
		}

		c.Set(principalKey, p)
		c.Set("user_id", p.UserID)
		c.Set("name", p.Name)
		c.Set("roles", claims.Roles)

		c.Next()
	}
}

// PrincipalFrom 读取认证中间件写入的调用者
func PrincipalFrom(c *gin.Context) workflow.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(workflow.Principal); ok {
			return p
		}
	}
	return workflow.Principal{}
}

// InGroup 判断调用者是否属于角色组
func InGroup(p workflow.Principal, group string) bool {
	switch group {
	case GroupManager:
		return p.SuperAdmin || p.HrdManager || p.DepartmentManager
	case GroupHrd:
		return p.SuperAdmin || p.HrdManager
	case GroupAdmin:
		return p.SuperAdmin
	}
	return false
}

// CheckRole 角色组检查中间件,满足任一组即可
func CheckRole(groups ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if !p.Authenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "unauthorized",
			})
			c.Abort()
			return
		}
		for _, g := range groups {
			if InGroup(p, g) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"code":    403,
			"message": "forbidden",
			"detail":  "requires one of: " + strings.Join(groups, ", "),
		})
		c.Abort()
	}
}

// bearerToken 从 Authorization 头读取 token
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
