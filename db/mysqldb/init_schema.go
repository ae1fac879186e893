package mysqldb

import (
	"log"
	"time"
)

// 此文件在 package mysqldb 下，和 mysql.go 同目录。
// 包初始化时启动一个后台协程，等待 mysqldb.DB 被 Init() 设置后执行幂等建表 SQL，
// 保证即使 AutoMigrate 被关掉，表结构也一定存在。

func init() {
	go func() {
		maxWait := 60 * time.Second
		interval := 500 * time.Millisecond
		deadline := time.Now().Add(maxWait)

		for {
			if DB != nil {
				if err := ensureSchema(); err != nil {
					log.Printf("[mysqldb/schema] ensureSchema failed: %v", err)
				} else {
					log.Println("[mysqldb/schema] ensureSchema succeeded")
				}
				return
			}
			if time.Now().After(deadline) {
				log.Printf("[mysqldb/schema] DB not ready after %v; abort schema init", maxWait)
				return
			}
			time.Sleep(interval)
		}
	}()
}

func ensureSchema() error {
	// CREATE TABLE IF NOT EXISTS 幂等执行。
	// scans.id 为 VARCHAR(64)，存放创建任务时生成的 uuid。
	// findings 以 (scan_id, finding_id) 联合唯一索引保证同一告警只落库一次。

	sqls := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			target VARCHAR(512) NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			engine_job VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,

		`CREATE TABLE IF NOT EXISTS findings (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scan_id VARCHAR(64) NOT NULL,
			finding_id VARCHAR(64) NOT NULL,
			name VARCHAR(512),
			risk VARCHAR(32),
			confidence VARCHAR(32),
			url VARCHAR(1024),
			param VARCHAR(512),
			evidence TEXT,
			solution TEXT,
			reference TEXT,
			tags JSON,
			cwe_id VARCHAR(32),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uk_scan_finding (scan_id, finding_id),
			INDEX idx_scan_id (scan_id),
			CONSTRAINT fk_findings_scan FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}

	for _, q := range sqls {
		if err := DB.Exec(q).Error; err != nil {
			return err
		}
	}

	return nil
}
