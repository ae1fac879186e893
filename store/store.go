package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MikoBN1/AWAST-Diploma/models"
	"github.com/MikoBN1/AWAST-Diploma/ws"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Store 扫描状态与告警的持久化实现。
// MySQL 是权威存储；Redis 只做 info 镜像和事件日志，写失败不影响主流程。
type Store struct {
	db  *gorm.DB
	rdb *redis.Client
}

func New(db *gorm.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

func InfoKey(scanID string) string { return "scan:" + scanID + ":info" }
func LogKey(scanID string) string  { return "scan:" + scanID + ":log" }

// UpdateStatus 写入权威状态，并把 Redis 镜像同步成一样的值（best-effort）
func (s *Store) UpdateStatus(ctx context.Context, scanID, status string) error {
	res := s.db.WithContext(ctx).Model(&models.Scan{}).
		Where("id = ?", scanID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update scan status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update scan status: scan %s not found", scanID)
	}

	_ = s.rdb.HSet(ctx, InfoKey(scanID),
		"status", status,
		"updated_at", time.Now().Format("2006-01-02 15:04:05"),
	).Err()
	return nil
}

// SaveFinding 按 (scan_id, finding_id) 幂等落库：已存在则跳过。
// 联合唯一索引兜底并发情况。
func (s *Store) SaveFinding(ctx context.Context, scanID string, a zap.Alert) error {
	// tags 列是 JSON 类型，空值也要是合法 JSON
	tags := "{}"
	if len(a.Tags) > 0 {
		if data, err := json.Marshal(a.Tags); err == nil {
			tags = string(data)
		}
	}

	f := models.Finding{
		ScanID:     scanID,
		FindingID:  a.ID,
		Name:       a.Name,
		Risk:       a.Risk,
		Confidence: a.Confidence,
		URL:        a.URL,
		Param:      a.Param,
		Evidence:   a.Evidence,
		Solution:   a.Solution,
		Reference:  a.Reference,
		Tags:       tags,
		CweID:      a.CweID,
	}

	res := s.db.WithContext(ctx).
		Where("scan_id = ? AND finding_id = ?", scanID, a.ID).
		FirstOrCreate(&f)
	if res.Error != nil {
		return fmt.Errorf("save finding: %w", res.Error)
	}
	return nil
}

// AppendEvent 把事件追加到该扫描的 Redis 日志列表，供 /api/log 回放。
// 序列化或写入失败直接忽略，日志不是权威数据。
func (s *Store) AppendEvent(ctx context.Context, scanID string, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = s.rdb.RPush(ctx, LogKey(scanID), data).Err()
}

// ReplayEvent 订阅者接入已终态扫描时要补发的事件。
// done 回放落库的全部告警，error 只回放状态本身；非终态返回 false。
func (s *Store) ReplayEvent(ctx context.Context, scanID string) (any, bool) {
	var sc models.Scan
	if err := s.db.WithContext(ctx).First(&sc, "id = ?", scanID).Error; err != nil {
		return nil, false
	}

	switch sc.Status {
	case models.StatusDone:
		var findings []models.Finding
		if err := s.db.WithContext(ctx).
			Where("scan_id = ?", scanID).
			Order("id asc").
			Find(&findings).Error; err != nil {
			return nil, false
		}
		alerts := make([]zap.Alert, 0, len(findings))
		for _, f := range findings {
			alerts = append(alerts, toAlert(f))
		}
		return ws.Done(len(alerts), len(alerts), alerts), true
	case models.StatusError:
		return ws.Errorf("scan ended with status error"), true
	}
	return nil, false
}

func toAlert(f models.Finding) zap.Alert {
	var tags map[string]string
	if f.Tags != "" {
		_ = json.Unmarshal([]byte(f.Tags), &tags)
	}
	return zap.Alert{
		ID:         f.FindingID,
		Name:       f.Name,
		Risk:       f.Risk,
		Confidence: f.Confidence,
		URL:        f.URL,
		Param:      f.Param,
		Evidence:   f.Evidence,
		Solution:   f.Solution,
		Reference:  f.Reference,
		CweID:      f.CweID,
		Tags:       tags,
	}
}
