package models

import "time"

// 扫描任务状态（终态只有 done / error，进入终态后不再变更）
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// Scan 一次针对单个目标的扫描任务。
// Status 只在创建时写入 pending，之后由 orchestrator 独占写入。
type Scan struct {
	ID        string    `gorm:"primaryKey;size:64" json:"scanId"`
	Target    string    `gorm:"size:512;not null" json:"target"`
	Status    string    `gorm:"size:32;not null" json:"status"`
	EngineJob string    `gorm:"size:64;not null" json:"engineJob"` // 引擎侧 ascan 任务句柄
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Finding 引擎报告的单条告警，落库后不再修改。
// FindingID 是引擎分配的告警 id，只在单次扫描范围内有唯一性保证，
// 所以用 (scan_id, finding_id) 联合唯一索引做幂等落库。
type Finding struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID     string    `gorm:"size:64;uniqueIndex:uk_scan_finding" json:"scanId"`
	FindingID  string    `gorm:"size:64;uniqueIndex:uk_scan_finding" json:"findingId"`
	Name       string    `gorm:"size:512" json:"name"`
	Risk       string    `gorm:"size:32" json:"risk"`
	Confidence string    `gorm:"size:32" json:"confidence"`
	URL        string    `gorm:"size:1024" json:"url"`
	Param      string    `gorm:"size:512" json:"param"`
	Evidence   string    `gorm:"type:text" json:"evidence,omitempty"`
	Solution   string    `gorm:"type:text" json:"solution,omitempty"`
	Reference  string    `gorm:"type:text" json:"reference,omitempty"`
	Tags       string    `gorm:"type:json" json:"tags,omitempty"`
	CweID      string    `gorm:"size:32" json:"cweid,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
