package scan

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikoBN1/AWAST-Diploma/db/mysqldb"
	"github.com/MikoBN1/AWAST-Diploma/db/redisdb"
	"github.com/MikoBN1/AWAST-Diploma/models"
	"github.com/MikoBN1/AWAST-Diploma/scanner"
	"github.com/MikoBN1/AWAST-Diploma/store"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler 扫描生命周期相关的 HTTP 接口
type Handler struct {
	Engine *zap.Client
	Orch   *scanner.Orchestrator
}

func NewHandler(engine *zap.Client, orch *scanner.Orchestrator) *Handler {
	return &Handler{Engine: engine, Orch: orch}
}

// 把引擎错误翻译成 HTTP 状态码：引擎拒绝 -> 400，网络不可达 -> 502
func engineErrStatus(err error) int {
	if zap.IsKind(err, zap.KindRejected) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func validTarget(t string) bool {
	u, err := url.Parse(t)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Create 创建并启动扫描：
// 1) 引擎侧启动 ascan 拿到任务句柄
// 2) MySQL 落任务记录（pending）+ Redis info 双写
// 3) 拿启动锁后拉起 orchestrator goroutine
func (h *Handler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Target string `json:"target"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		req.Target = strings.TrimSpace(req.Target)
		if !validTarget(req.Target) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid target"})
			return
		}

		ctx := c.Request.Context()

		// 扫描前先让引擎访问一次目标，确保它在引擎的站点树里（失败不阻断）
		if err := h.Engine.AccessURL(ctx, req.Target); err != nil {
			log.Printf("[scan.create] accessUrl %s failed: %v", req.Target, err)
		}

		job, err := h.Engine.StartScan(ctx, req.Target)
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}

		scanID := uuid.NewString()
		now := time.Now()
		sc := models.Scan{
			ID:        scanID,
			Target:    req.Target,
			Status:    models.StatusPending,
			EngineJob: job,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := mysqldb.DB.Create(&sc).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db create scan failed: " + err.Error()})
			return
		}

		// Redis info 双写（供列表/状态接口快速读取，失败不回滚 MySQL）
		_ = redisdb.Client.HSet(redisdb.Ctx, store.InfoKey(scanID), map[string]interface{}{
			"scanId":     scanID,
			"target":     req.Target,
			"status":     models.StatusPending,
			"engineJob":  job,
			"created_at": now.Format("2006-01-02 15:04:05"),
			"updated_at": now.Format("2006-01-02 15:04:05"),
		}).Err()

		if !h.launch(sc) {
			// scanId 是新生成的，理论上到不了这里；到了说明 Redis 出了问题
			c.JSON(http.StatusConflict, gin.H{"error": "scan already launched"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "扫描任务已启动",
			"scanId":    scanID,
			"engineJob": job,
			"target":    req.Target,
		})
	}
}

// launch 拉起 orchestrator。
// 用 Redis SetNX 启动锁保证同一 scanId 至多一个 orchestrator 在跑——
// 这个不变式由启动方负责，引擎不会帮我们保证。
// TTL 覆盖整个轮询预算（60 轮 × 5s = 5 分钟）并留余量，异常退出时锁自动过期。
func (h *Handler) launch(sc models.Scan) bool {
	lockKey := "scan:lock:" + sc.ID
	acquired, err := redisdb.Client.SetNX(redisdb.Ctx, lockKey, "1", 10*time.Minute).Result()
	if err != nil {
		log.Printf("[scan.launch] redis lock error scan=%s: %v", sc.ID, err)
		return false
	}
	if !acquired {
		return false
	}

	// 后台任务独立于请求的生命周期；终态结果由 Run 自己落库并打日志，不会静默丢失
	go func() {
		defer func() {
			_ = redisdb.Client.Del(redisdb.Ctx, lockKey).Err()
		}()
		h.Orch.Run(context.Background(), sc.ID, sc.Target, sc.EngineJob)
	}()
	return true
}

// List 任务列表：MySQL 为准，状态用 Redis info 覆盖显示（如果有更新的值）
func (h *Handler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		var scans []models.Scan
		if err := mysqldb.DB.Order("created_at desc").Find(&scans).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := make([]gin.H, 0, len(scans))
		for _, sc := range scans {
			status := sc.Status
			if info, _ := redisdb.Client.HGetAll(redisdb.Ctx, store.InfoKey(sc.ID)).Result(); len(info) > 0 {
				if s, ok := info["status"]; ok {
					status = s
				}
			}
			resp = append(resp, gin.H{
				"scanId":     sc.ID,
				"target":     sc.Target,
				"status":     status,
				"created_at": sc.CreatedAt.Format("2006-01-02 15:04:05"),
				"updated_at": sc.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		c.JSON(http.StatusOK, gin.H{"scans": resp})
	}
}

// Status 单个任务的当前状态
func (h *Handler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID, _ := c.GetQuery("scanId")
		if scanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing scanId"})
			return
		}

		var sc models.Scan
		if err := mysqldb.DB.First(&sc, "id = ?", scanID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}

		status := sc.Status
		if info, _ := redisdb.Client.HGetAll(redisdb.Ctx, store.InfoKey(scanID)).Result(); len(info) > 0 {
			if s, ok := info["status"]; ok {
				status = s
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"scanId":     sc.ID,
			"target":     sc.Target,
			"status":     status,
			"engineJob":  sc.EngineJob,
			"created_at": sc.CreatedAt.Format("2006-01-02 15:04:05"),
			"updated_at": sc.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
}

// Abort 请求引擎停止扫描。幂等：重复调用、对已结束的任务调用都安全。
// 不强行终止轮询循环——orchestrator 下一轮会看到引擎上报的最终进度，
// 照常走收尾/失败路径落一个持久化终态。
func (h *Handler) Abort() gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID, _ := c.GetQuery("scanId")
		if scanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing scanId"})
			return
		}

		var sc models.Scan
		if err := mysqldb.DB.First(&sc, "id = ?", scanID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}

		if err := h.Engine.StopScan(c.Request.Context(), sc.EngineJob); err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "停止请求已发送",
			"scanId":  scanID,
		})
	}
}

// Findings 已落库的告警列表
func (h *Handler) Findings() gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID, _ := c.GetQuery("scanId")
		if scanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing scanId"})
			return
		}

		var findings []models.Finding
		if err := mysqldb.DB.Where("scan_id = ?", scanID).Order("id asc").Find(&findings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"scanId":   scanID,
			"count":    len(findings),
			"findings": findings,
		})
	}
}

// SpiderStart 启动引擎爬虫（扫描前可选的预热步骤）
func (h *Handler) SpiderStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Target string `json:"target"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		req.Target = strings.TrimSpace(req.Target)
		if !validTarget(req.Target) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid target"})
			return
		}

		id, err := h.Engine.StartSpider(c.Request.Context(), req.Target)
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"spiderId": id, "target": req.Target})
	}
}

// SpiderStatus 爬虫进度
func (h *Handler) SpiderStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.GetQuery("spiderId")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing spiderId"})
			return
		}

		progress, err := h.Engine.SpiderStatus(c.Request.Context(), id)
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"spiderId": id, "progress": progress})
	}
}
