// Package hal 抽象称重模块使用的两根 GPIO 线（DOUT 输入、SCK 输出），
// 使驱动既能跑在真实硬件（periph）上，也能在测试中使用模拟芯片。
package hal

// InputPin 数字输入
type InputPin interface {
	// Read 读取电平，true 为高电平
	Read() bool
}

// OutputPin 数字输出
type OutputPin interface {
	// Set 设置电平，true 为高电平
	Set(high bool)
}

// Faulter 可报告写入失败的引脚。TakeErr 返回上次调用以来的首个错误并清空
type Faulter interface {
	TakeErr() error
}
