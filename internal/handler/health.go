package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
)

// Health reports connectivity of the local store, Redis and the remote
// document store. Remote being down degrades the answer, not the status:
// the terminal is built to run offline.
func Health(db *gorm.DB, rdb *redis.Client, store remote.Store, cb *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		remoteStatus := "connected"
		if cb.State() == infra.CBOpen {
			remoteStatus = "circuit_open"
		} else if store.Ping(ctx) != nil {
			remoteStatus = "unreachable"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":     status == http.StatusOK,
			"db":     dbStatus,
			"redis":  redisStatus,
			"remote": remoteStatus,
		})
	}
}
