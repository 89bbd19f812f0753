// Package reader 提供 RFID 读卡器的字节源。控制循环只通过 TryRead 非阻塞地取字节，
// 串口读取、断线重连都在后台协程中完成。
package reader

// Source 非阻塞字节源，ok=false 表示当前没有数据
type Source interface {
	TryRead() (b byte, ok bool)
}

// Status 字节源状态
type Status struct {
	Connected bool   `json:"connected"`
	Device    string `json:"device"`
	Opens     int    `json:"opens"`
	Bytes     uint64 `json:"bytes"`
	Dropped   uint64 `json:"dropped"`
	LastError string `json:"last_error,omitempty"`
}
