package log

import (
	"encoding/json"

	"github.com/MikoBN1/AWAST-Diploma/db/redisdb"
	"github.com/MikoBN1/AWAST-Diploma/store"

	"github.com/gin-gonic/gin"
)

// GetLog 回放某次扫描的事件日志（orchestrator 广播过的 progress/done/error）
func GetLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID := c.Query("scanId")
		if scanID == "" {
			c.JSON(400, gin.H{"error": "missing scanId"})
			return
		}

		// 读取最近 N 条事件（最后 100 条）
		raw, err := redisdb.Client.LRange(redisdb.Ctx, store.LogKey(scanID), -100, -1).Result()
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}

		events := make([]json.RawMessage, 0, len(raw))
		for _, item := range raw {
			events = append(events, json.RawMessage(item))
		}

		c.JSON(200, gin.H{
			"scanId": scanID,
			"events": events,
		})
	}
}
