package alerts

import (
	"net/http"

	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/gin-gonic/gin"
)

// Handler 引擎告警视图的透传接口（不依赖某次扫描）
type Handler struct {
	Engine *zap.Client
}

func NewHandler(engine *zap.Client) *Handler {
	return &Handler{Engine: engine}
}

func engineErrStatus(err error) int {
	if zap.IsKind(err, zap.KindRejected) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// List 全量告警，按 (name, url, param) 去重并只保留带 evidence 的条目。
// 可用 ?baseurl= 按目标过滤。
func (h *Handler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		baseurl := c.Query("baseurl")

		raw, err := h.Engine.Alerts(c.Request.Context(), baseurl)
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}

		filtered := Dedupe(raw)
		c.JSON(http.StatusOK, gin.H{
			"count":  len(filtered),
			"alerts": filtered,
		})
	}
}

// Summary 按风险等级汇总
func (h *Handler) Summary() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.Engine.AlertsSummary(c.Request.Context())
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// Get 按引擎告警 id 取详情
func (h *Handler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.GetQuery("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing id"})
			return
		}

		a, err := h.Engine.Alert(c.Request.Context(), id)
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert": a})
	}
}

// Dedupe 按 (name, url, param) 去重，丢弃没有 evidence 的条目，保持原有顺序
func Dedupe(alerts []zap.Alert) []zap.Alert {
	type key struct {
		name, url, param string
	}
	seen := make(map[key]struct{})
	out := make([]zap.Alert, 0, len(alerts))
	for _, a := range alerts {
		k := key{a.Name, a.URL, a.Param}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if a.Evidence == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}
