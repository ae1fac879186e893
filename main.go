package main

import (
	"time"

	"github.com/MikoBN1/AWAST-Diploma/alerts"
	"github.com/MikoBN1/AWAST-Diploma/config"
	"github.com/MikoBN1/AWAST-Diploma/db/mysqldb"
	"github.com/MikoBN1/AWAST-Diploma/db/redisdb"
	"github.com/MikoBN1/AWAST-Diploma/log"
	"github.com/MikoBN1/AWAST-Diploma/scan"
	"github.com/MikoBN1/AWAST-Diploma/scanner"
	"github.com/MikoBN1/AWAST-Diploma/store"
	"github.com/MikoBN1/AWAST-Diploma/ws"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	redisdb.Init(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	mysqldb.Init(cfg.MysqlUser, cfg.MysqlPass, cfg.MysqlHost, cfg.MysqlDB)
	scan.Init()

	engine := zap.NewClient(cfg.ZapURL, cfg.ZapKey)
	hub := ws.NewHub()
	st := store.New(mysqldb.DB, redisdb.Client)
	orch := scanner.New(engine, st, hub)

	router := gin.Default()

	// CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "请在前端服务器访问！",
		})
	})

	// 所有 API 路由
	v1 := router.Group("/api")
	{
		// 扫描生命周期
		h := scan.NewHandler(engine, orch)
		scans := v1.Group("/scan")
		{
			scans.POST("/create", h.Create())
			scans.GET("/list", h.List())
			scans.GET("/status", h.Status())
			scans.GET("/abort", h.Abort())
			scans.GET("/findings", h.Findings())
		}

		// 爬虫
		spider := v1.Group("/spider")
		{
			spider.POST("/start", h.SpiderStart())
			spider.GET("/status", h.SpiderStatus())
		}

		// 引擎告警视图
		a := alerts.NewHandler(engine)
		al := v1.Group("/alerts")
		{
			al.GET("", a.List())
			al.GET("/summary", a.Summary())
			al.GET("/detail", a.Get())
		}

		// 实时进度订阅 + 事件日志回放
		v1.GET("/ws", ws.Serve(hub, st))
		v1.GET("/log", log.GetLog())
	}

	router.Run(cfg.Listen) // 在 5003 端口监听并启动服务
}
