/**
 * 扫描编排：轮询引擎、增量发现告警、推送事件、落库终态
 */
package scanner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MikoBN1/AWAST-Diploma/models"
	"github.com/MikoBN1/AWAST-Diploma/ws"
	"github.com/MikoBN1/AWAST-Diploma/zap"
)

// Engine 编排循环需要的引擎能力子集，*zap.Client 直接满足
type Engine interface {
	ScanStatus(ctx context.Context, job string) (int, error)
	AlertIDs(ctx context.Context, job string) ([]string, error)
	Alert(ctx context.Context, id string) (zap.Alert, error)
	Alerts(ctx context.Context, baseurl string) ([]zap.Alert, error)
}

// Store 状态存储边界：终态写入和告警落库
type Store interface {
	UpdateStatus(ctx context.Context, scanID, status string) error
	// SaveFinding 按 (scanID, finding id) 幂等落库
	SaveFinding(ctx context.Context, scanID string, a zap.Alert) error
	// AppendEvent 事件日志，best-effort，不返回错误
	AppendEvent(ctx context.Context, scanID string, ev any)
}

// Broadcaster 向某个 scanId 的全部订阅者投递事件
type Broadcaster interface {
	Broadcast(scanID string, ev any)
}

const (
	// 轮询间隔与轮数上限：60 轮 × 5s，整个轮询预算 5 分钟
	defaultInterval  = 5 * time.Second
	defaultMaxCycles = 60
)

// Orchestrator 驱动一次扫描从 running 走到终态（done / error）。
// 同一个实例可以并发服务多个扫描，每个扫描一个 Run goroutine；
// 单个扫描内的轮询严格串行，下一轮一定在上一轮广播完成之后。
type Orchestrator struct {
	Engine    Engine
	Store     Store
	Hub       Broadcaster
	Interval  time.Duration
	MaxCycles int
}

func New(engine Engine, store Store, hub Broadcaster) *Orchestrator {
	return &Orchestrator{
		Engine:    engine,
		Store:     store,
		Hub:       hub,
		Interval:  defaultInterval,
		MaxCycles: defaultMaxCycles,
	}
}

// Run 走完一次扫描的完整生命周期，结束前必定写入一个持久化终态。
// 由启动方保证同一 scanId 至多一个 Run 在跑（见 scan 包的启动锁）。
func (o *Orchestrator) Run(ctx context.Context, scanID, target, job string) {
	log.Printf("[orchestrator] scan=%s target=%s job=%s start", scanID, target, job)

	if err := o.Store.UpdateStatus(ctx, scanID, models.StatusRunning); err != nil {
		o.fail(ctx, scanID, err)
		return
	}

	ledger := NewLedger()
	completed := false

	for cycle := 0; cycle < o.MaxCycles; cycle++ {
		progress, err := o.Engine.ScanStatus(ctx, job)
		if err != nil {
			o.fail(ctx, scanID, err)
			return
		}

		ids, err := o.Engine.AlertIDs(ctx, job)
		if err != nil {
			o.fail(ctx, scanID, err)
			return
		}

		var newAlerts []zap.Alert
		for _, id := range ledger.Delta(ids) {
			a, err := o.Engine.Alert(ctx, id)
			if err != nil {
				// 拉详情失败只跳过本轮；id 已记为 seen，后续轮次不会重复播报
				log.Printf("[orchestrator] scan=%s alert=%s detail fetch failed: %v", scanID, id, err)
				continue
			}
			newAlerts = append(newAlerts, a)
		}

		o.emit(ctx, scanID, ws.Progress(progress, newAlerts, ledger.Len()))

		if progress >= 100 {
			completed = true
			break
		}

		select {
		case <-ctx.Done():
			o.fail(ctx, scanID, ctx.Err())
			return
		case <-time.After(o.Interval):
		}
	}

	if !completed {
		// 轮数用尽仍未到 100：超时终止，不再调用引擎
		o.terminate(ctx, scanID, ws.Errorf("Scan timeout"))
		log.Printf("[orchestrator] scan=%s timed out after %d cycles", scanID, o.MaxCycles)
		return
	}

	o.finalize(ctx, scanID, target, ledger)
}

// finalize 进度到 100 后的收尾：全量拉取、幂等落库、写 done、广播 done
func (o *Orchestrator) finalize(ctx context.Context, scanID, target string, ledger *Ledger) {
	alerts, err := o.Engine.Alerts(ctx, target)
	if err != nil {
		o.fail(ctx, scanID, err)
		return
	}

	// 引擎的全量视图会把增量阶段已播报过的条目再报一遍，
	// SaveFinding 按 finding id 去重，不会产生重复记录
	for _, a := range alerts {
		if err := o.Store.SaveFinding(ctx, scanID, a); err != nil {
			o.fail(ctx, scanID, err)
			return
		}
	}

	if err := o.Store.UpdateStatus(ctx, scanID, models.StatusDone); err != nil {
		o.fail(ctx, scanID, err)
		return
	}

	o.emit(ctx, scanID, ws.Done(len(alerts), ledger.Len(), alerts))
	log.Printf("[orchestrator] scan=%s done findings=%d total_seen=%d", scanID, len(alerts), ledger.Len())
}

// fail 统一失败出口：网络错误、引擎拒绝、落库失败都走这里，
// 不做内联重试（瞬时网络抖动同样按失败处理，重试需要操作者重新发起扫描）
func (o *Orchestrator) fail(ctx context.Context, scanID string, err error) {
	var ze *zap.Error
	if errors.As(err, &ze) {
		log.Printf("[orchestrator] scan=%s failed (engine %s): %v", scanID, ze.Kind, err)
	} else {
		log.Printf("[orchestrator] scan=%s failed: %v", scanID, err)
	}
	o.terminate(ctx, scanID, ws.Errorf("%s", err.Error()))
}

// terminate 写入持久化终态 error 并广播唯一的 error 事件。
// ctx 可能已取消，持久化用剥离取消信号的 context，保证终态一定落盘。
func (o *Orchestrator) terminate(ctx context.Context, scanID string, ev ws.ErrorEvent) {
	ctx = context.WithoutCancel(ctx)
	if err := o.Store.UpdateStatus(ctx, scanID, models.StatusError); err != nil {
		log.Printf("[orchestrator] scan=%s terminal status write failed: %v", scanID, err)
	}
	o.emit(ctx, scanID, ev)
}

// emit 广播 + 写入事件日志（日志 best-effort）
func (o *Orchestrator) emit(ctx context.Context, scanID string, ev any) {
	o.Hub.Broadcast(scanID, ev)
	o.Store.AppendEvent(ctx, scanID, ev)
}
