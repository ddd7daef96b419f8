package utils

import "time"

// ReconnectStrategy 决定断线后等待多久再重连
type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

var _ ReconnectStrategy = (*ExponentialBackoff)(nil)

// ExponentialBackoff 从初始延迟开始每次翻倍，直到上限
type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

// NewExponentialBackoff 1秒起，上限30秒
func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffWith(1*time.Second, 30*time.Second)
}

func NewExponentialBackoffWith(initial, maxDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     maxDelay,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

// Reset 连接成功后回到初始延迟
func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}
