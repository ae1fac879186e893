package scan

import (
	"context"
	"log"
	"time"

	"github.com/MikoBN1/AWAST-Diploma/db/mysqldb"
	"github.com/MikoBN1/AWAST-Diploma/db/redisdb"
	"github.com/MikoBN1/AWAST-Diploma/models"
	"github.com/MikoBN1/AWAST-Diploma/store"
)

// 初始化后台 Worker
func Init() {
	go sweepStaleScans()
	go infoCompensatorWorker()
}

// sweepStaleScans 进程启动时执行一次：
// 把上一个进程遗留的 pending/running 扫描标记为 error。
// orchestrator 不跨进程存活，这些任务不可能再自己到达终态。
func sweepStaleScans() {
	res := mysqldb.DB.Model(&models.Scan{}).
		Where("status IN ?", []string{models.StatusPending, models.StatusRunning}).
		Update("status", models.StatusError)
	if res.Error != nil {
		log.Printf("[scanSweeper] mysql update failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[scanSweeper] marked %d stale scans as error", res.RowsAffected)
	}
}

// infoCompensatorWorker 保证 Redis 中 scan:{id}:info 与 MySQL 数据一致：
// info 丢失（Redis 重启、被清理）时从 MySQL 补回。每分钟检查一次。
func infoCompensatorWorker() {
	ctx := context.Background()
	backoffBase := time.Second * 2

	for {
		var scans []models.Scan
		if err := mysqldb.DB.Find(&scans).Error; err != nil {
			log.Printf("[infoCompensator] mysql query failed: %v", err)
			time.Sleep(backoffBase)
			continue
		}

		for _, sc := range scans {
			infoKey := store.InfoKey(sc.ID)

			exists, err := redisdb.Client.Exists(ctx, infoKey).Result()
			if err != nil {
				log.Printf("[infoCompensator] redis exists check failed scan=%s err=%v", sc.ID, err)
				continue
			}
			if exists != 0 {
				continue
			}

			info := map[string]interface{}{
				"scanId":     sc.ID,
				"target":     sc.Target,
				"status":     sc.Status,
				"engineJob":  sc.EngineJob,
				"created_at": sc.CreatedAt.Format("2006-01-02 15:04:05"),
				"updated_at": sc.UpdatedAt.Format("2006-01-02 15:04:05"),
			}
			if err := redisdb.Client.HSet(ctx, infoKey, info).Err(); err != nil {
				log.Printf("[infoCompensator] redis HSet failed scan=%s err=%v", sc.ID, err)
				continue
			}
			log.Printf("[infoCompensator] restored scan info to redis scan=%s", sc.ID)
		}

		time.Sleep(time.Minute)
	}
}
