package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/scan-scale/internal/api/middleware"
	"github.com/taoyao-code/scan-scale/internal/display"
	"github.com/taoyao-code/scan-scale/internal/loadcell"
	"github.com/taoyao-code/scan-scale/internal/reader"
	"github.com/taoyao-code/scan-scale/internal/scansession"
)

// SessionView 会话快照来源
type SessionView interface {
	Snapshot() scansession.Session
}

// ScaleView 称重来源
type ScaleView interface {
	Latest() (loadcell.WeightSample, bool)
	Calibration() loadcell.Calibration
	Health() loadcell.Health
}

// ReaderView 读卡器状态来源
type ReaderView interface {
	Status() reader.Status
}

// BoardView 显示屏来源
type BoardView interface {
	Snapshot() display.Snapshot
}

// Tarer 手动去皮
type Tarer interface {
	Tare()
}

// Handler 状态查询与去皮
type Handler struct {
	DeviceID string
	Session  SessionView
	Scale    ScaleView
	Reader   ReaderView
	Board    BoardView
	Tarer    Tarer
	Logger   *zap.Logger
}

// WeightView 重量响应
type WeightView struct {
	Valid  bool                 `json:"valid"`
	Sample loadcell.WeightSample `json:"sample"`
	Health loadcell.Health       `json:"health"`
	Calib  loadcell.Calibration  `json:"calibration"`
}

// StatusResponse GET /api/status
type StatusResponse struct {
	DeviceID string              `json:"device_id"`
	Time     time.Time           `json:"time"`
	Session  scansession.Session `json:"session"`
	Weight   *WeightView         `json:"weight,omitempty"`
	Reader   *reader.Status      `json:"reader,omitempty"`
	Display  *display.Snapshot   `json:"display,omitempty"`
}

// Status 当前会话、重量、读卡器与屏幕
func (h *Handler) Status(c *gin.Context) {
	resp := StatusResponse{DeviceID: h.DeviceID, Time: time.Now()}
	if h.Session != nil {
		resp.Session = h.Session.Snapshot()
	}
	if h.Scale != nil {
		sample, ok := h.Scale.Latest()
		resp.Weight = &WeightView{
			Valid:  ok,
			Sample: sample,
			Health: h.Scale.Health(),
			Calib:  h.Scale.Calibration(),
		}
	}
	if h.Reader != nil {
		st := h.Reader.Status()
		resp.Reader = &st
	}
	if h.Board != nil {
		snap := h.Board.Snapshot()
		resp.Display = &snap
	}
	c.JSON(http.StatusOK, resp)
}

// Tare 请求去皮，异步执行
func (h *Handler) Tare(c *gin.Context) {
	if h.Tarer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scale not available"})
		return
	}
	h.Tarer.Tare()
	if h.Logger != nil {
		h.Logger.Info("tare requested via api",
			zap.String("remote_addr", c.ClientIP()),
			zap.String("caller", middleware.Caller(c)))
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}
