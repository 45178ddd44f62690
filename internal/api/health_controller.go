package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/database"
)

// HealthController 健康检查控制器
type HealthController struct {
	db        *gorm.DB
	fgaClient *auth.OpenFGAClient
}

// NewHealthController 创建健康检查控制器,fgaClient 可以为 nil
func NewHealthController(db *gorm.DB, fgaClient *auth.OpenFGAClient) *HealthController {
	return &HealthController{
		db:        db,
		fgaClient: fgaClient,
	}
}

// Check 健康检查
// @Summary      健康检查
// @Tags         系统
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if c.db == nil {
		checks["database"] = "not configured"
	} else if database.CheckHealth(c.db) {
		checks["database"] = "healthy"
	} else {
		status = "unhealthy"
		checks["database"] = "unhealthy"
	}

	if c.fgaClient == nil {
		checks["openfga"] = "not configured"
	} else {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()
		if c.fgaClient.CheckHealth(reqCtx) {
			checks["openfga"] = "healthy"
		} else {
			// 部门目录有缓存兜底,OpenFGA 不可用只降级
			checks["openfga"] = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
