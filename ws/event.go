package ws

import (
	"fmt"

	"github.com/MikoBN1/AWAST-Diploma/zap"
)

// 推送给订阅者的事件。一次扫描最终只会收到一条 done 或 error，
// 在那之前可能收到任意条 progress。

type ProgressEvent struct {
	Type        string      `json:"type"`
	Progress    int         `json:"progress"`
	NewAlerts   []zap.Alert `json:"new_alerts"`
	TotalAlerts int         `json:"total_alerts"`
}

type DoneEvent struct {
	Type        string      `json:"type"`
	Progress    int         `json:"progress"`
	AlertsCount int         `json:"alerts_count"`
	TotalAlerts int         `json:"total_alerts"`
	Alerts      []zap.Alert `json:"alerts"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Progress(progress int, newAlerts []zap.Alert, total int) ProgressEvent {
	if newAlerts == nil {
		newAlerts = []zap.Alert{}
	}
	return ProgressEvent{
		Type:        "progress",
		Progress:    progress,
		NewAlerts:   newAlerts,
		TotalAlerts: total,
	}
}

func Done(count, total int, alerts []zap.Alert) DoneEvent {
	if alerts == nil {
		alerts = []zap.Alert{}
	}
	return DoneEvent{
		Type:        "done",
		Progress:    100,
		AlertsCount: count,
		TotalAlerts: total,
		Alerts:      alerts,
	}
}

func Errorf(format string, args ...any) ErrorEvent {
	return ErrorEvent{
		Type:    "error",
		Message: fmt.Sprintf(format, args...),
	}
}
