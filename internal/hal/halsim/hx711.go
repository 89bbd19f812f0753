// Package halsim 模拟 HX711 芯片的两线时序，用于测试与无硬件运行
package halsim

import (
	"sync"
	"time"
)

// powerDownHold SCK 高电平保持超过该时长芯片进入掉电，拉低后复位
const powerDownHold = 60 * time.Microsecond

// HX711 模拟芯片。Dout() 返回数据线，Sck() 返回时钟线
type HX711 struct {
	mu       sync.Mutex
	value    int32 // 24位补码
	ready    bool
	shifting bool
	bit      int
	out      bool
	sck      bool

	conversions int
	pulses      int

	now      func() time.Time
	risingAt time.Time
	resets   int

	writeErr error // 非 nil 时 SCK 写入失败
	pinErr   error
}

// NewHX711 创建模拟芯片，初始即就绪
func NewHX711(value int32) *HX711 {
	return &HX711{value: value, ready: true}
}

// SetValue 设置下一次转换结果（截断为24位）
func (c *HX711) SetValue(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// SetReady 设置芯片是否就绪；false 模拟传感器无响应
func (c *HX711) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// SetClock 注入时钟后才模拟掉电复位时序
func (c *HX711) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SetWriteError 模拟 SCK 线写入失败（接线断开、引脚被占用）；nil 恢复
func (c *HX711) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Resets 掉电复位次数
func (c *HX711) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Conversions 已完成的读取次数
func (c *HX711) Conversions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversions
}

// Pulses 时钟上升沿总数
func (c *HX711) Pulses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulses
}

// Dout 数据线
func (c *HX711) Dout() *Dout { return &Dout{chip: c} }

// Sck 时钟线
func (c *HX711) Sck() *Sck { return &Sck{chip: c} }

// Dout 数据线引脚
type Dout struct{ chip *HX711 }

// Read 实现 hal.InputPin：空闲时低电平表示就绪
func (d *Dout) Read() bool {
	c := d.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shifting {
		return c.out
	}
	return !c.ready
}

// Sck 时钟线引脚
type Sck struct{ chip *HX711 }

// Set 实现 hal.OutputPin：上升沿移出下一位
func (s *Sck) Set(high bool) {
	c := s.chip
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		if c.pinErr == nil {
			c.pinErr = c.writeErr
		}
		return
	}

	rising := high && !c.sck
	falling := !high && c.sck
	c.sck = high
	if falling && c.now != nil && c.now().Sub(c.risingAt) >= powerDownHold {
		c.shifting = false
		c.bit = 0
		c.resets++
		return
	}
	if !rising {
		return
	}
	if c.now != nil {
		c.risingAt = c.now()
	}
	c.pulses++

	if !c.shifting {
		if !c.ready {
			return
		}
		c.shifting = true
		c.bit = 0
	}

	if c.bit < 24 {
		c.out = (uint32(c.value)>>(23-c.bit))&1 == 1
		c.bit++
		return
	}

	// 第25个脉冲：数据线拉高，本次转换结束
	c.shifting = false
	c.conversions++
}

// TakeErr 实现 hal.Faulter
func (s *Sck) TakeErr() error {
	c := s.chip
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.pinErr
	c.pinErr = nil
	return err
}
