// audio/controller.go
package audio

import "sync"

// controller 实现收发占用逻辑
//
// exclusive 为 true 时为半双工：同一时刻只能发送或接收，
// 避免扬声器的声音被同一台机器的麦克风解码。
type controller struct {
	mu             sync.Mutex
	exclusive      bool
	isTransmitting bool
	isReceiving    bool
}

// NewController 创建新的收发控制器实例
func NewController(exclusive bool) Controller {
	return &controller{exclusive: exclusive}
}

func (c *controller) StartTransmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTransmitting || (c.exclusive && c.isReceiving) {
		return false
	}

	c.isTransmitting = true
	return true
}

func (c *controller) StopTransmitting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isTransmitting = false
}

func (c *controller) StartReceiving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isReceiving || (c.exclusive && c.isTransmitting) {
		return false
	}

	c.isReceiving = true
	return true
}

func (c *controller) StopReceiving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isReceiving = false
}

func (c *controller) IsTransmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isTransmitting
}

func (c *controller) IsReceiving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReceiving
}
