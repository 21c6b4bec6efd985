package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/pkg/response"
)

// Health reports process liveness and database reachability.
func Health(db *gorm.DB) gin.HandlerFunc {
	started := time.Now()

	return func(c *gin.Context) {
		status := "ok"
		dbStatus := "ok"
		code := http.StatusOK

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			dbStatus = "unreachable"
			code = http.StatusServiceUnavailable
		}

		response.Success(c, code, gin.H{
			"status":   status,
			"database": dbStatus,
			"uptime":   time.Since(started).Truncate(time.Second).String(),
		})
	}
}
