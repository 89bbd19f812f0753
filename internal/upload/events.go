// Package upload 把刷卡结果签名后推送到外部 Webhook。
// 事件先进入内存队列，由后台 worker 直接推送或转存 Redis 队列，控制循环永不阻塞。
package upload

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// EventScanCompleted 一次刷卡完成
	EventScanCompleted EventType = "scan.completed"
	// EventScaleTared 去皮完成
	EventScaleTared EventType = "scale.tared"
)

// ScanEvent 推送的事件体
type ScanEvent struct {
	EventID     string    `json:"event_id"`
	EventType   EventType `json:"event_type"`
	DeviceID    string    `json:"device_id"`
	TagID       uint64    `json:"tag_id,omitempty"`
	WeightGrams *float64  `json:"weight_grams"` // 无有效重量时为 null
	Item        string    `json:"item,omitempty"`
	Count       int       `json:"count,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// Scan 构造事件所需的刷卡信息
type Scan struct {
	TagID     uint64
	Grams     float64
	HasWeight bool
	Item      string
	Count     int
	At        time.Time
}

// NewScanEvent 创建刷卡事件
func NewScanEvent(deviceID string, s Scan) *ScanEvent {
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	ev := &ScanEvent{
		EventID:   uuid.NewString(),
		EventType: EventScanCompleted,
		DeviceID:  deviceID,
		TagID:     s.TagID,
		Item:      s.Item,
		Count:     s.Count,
		Timestamp: at.Unix(),
	}
	if s.HasWeight {
		g := s.Grams
		ev.WeightGrams = &g
	}
	return ev
}

// NewTareEvent 创建去皮事件
func NewTareEvent(deviceID string, at time.Time) *ScanEvent {
	return &ScanEvent{
		EventID:   uuid.NewString(),
		EventType: EventScaleTared,
		DeviceID:  deviceID,
		Timestamp: at.Unix(),
	}
}

func (e *ScanEvent) String() string {
	return fmt.Sprintf("%s(%s tag=%d)", e.EventType, e.EventID, e.TagID)
}
