// Package periph 基于 periph.io 的 GPIO 实现（树莓派等 Linux 主机）
package periph

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Input 输入引脚
type Input struct {
	pin gpio.PinIO
}

// Read 实现 hal.InputPin
func (p *Input) Read() bool { return p.pin.Read() == gpio.High }

// Output 输出引脚。写入失败不中断时序，首个错误留给 TakeErr
type Output struct {
	pin gpio.PinIO

	mu  sync.Mutex
	err error
}

// Set 实现 hal.OutputPin
func (p *Output) Set(high bool) {
	if err := p.pin.Out(gpio.Level(high)); err != nil {
		p.mu.Lock()
		if p.err == nil {
			p.err = fmt.Errorf("gpio %s write: %w", p.pin.Name(), err)
		}
		p.mu.Unlock()
	}
}

// TakeErr 实现 hal.Faulter
func (p *Output) TakeErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	p.err = nil
	return err
}

// Open 初始化主机驱动并按名称打开 DOUT/SCK 引脚（如 "GPIO5"）
func Open(doutName, sckName string) (*Input, *Output, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	dout := gpioreg.ByName(doutName)
	if dout == nil {
		return nil, nil, fmt.Errorf("gpio %q not found", doutName)
	}
	if err := dout.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, nil, fmt.Errorf("gpio %s as input: %w", doutName, err)
	}

	sck := gpioreg.ByName(sckName)
	if sck == nil {
		return nil, nil, fmt.Errorf("gpio %q not found", sckName)
	}
	if err := sck.Out(gpio.Low); err != nil {
		return nil, nil, fmt.Errorf("gpio %s as output: %w", sckName, err)
	}

	return &Input{pin: dout}, &Output{pin: sck}, nil
}
