package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sdsai/airqso-go/audio"
)

// Worker 发送与接收工作者共同的启动/停止能力
type Worker interface {
	// Start 在独立的goroutine中运行，重复调用无效
	Start()
	// Stop 停止并等待goroutine完全退出。ctx 到期时放弃等待，
	// 返回 ErrJoinInterrupted，工作者会在后台自行退出并释放设备。
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	Session() string
}

// deviceGuard 保护运行标志与设备状态的临界区
//
// running 只会从 true 变为 false。设备的停止与释放都在锁内完成，
// 所以外部 Stop 与工作者自己的清理不会重复释放。
type deviceGuard struct {
	mu      sync.Mutex
	dev     audio.Device
	running bool
	halted  bool
}

// arm 在启动goroutine之前同步设置运行标志
func (g *deviceGuard) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.halted {
		g.running = true
	}
}

func (g *deviceGuard) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// start 仍在运行时启动设备
func (g *deviceGuard) start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return ErrNotRunning
	}
	return g.dev.Start()
}

// halt 清除运行标志并立即让设备退出活动状态，唤醒阻塞中的读写
func (g *deviceGuard) halt() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	g.halted = true
	if g.dev.State() == audio.StateActive {
		return g.dev.Stop()
	}
	return nil
}

// drain 正常结束时让播放设备播完已排队的样本再停止。
// 已被 halt 的设备不再等待，设备在锁外排空，halt 仍可随时中止。
func (g *deviceGuard) drain(logger *slog.Logger) {
	g.mu.Lock()
	d, ok := g.dev.(audio.Drainer)
	active := g.running && g.dev.State() == audio.StateActive
	g.mu.Unlock()
	if !ok || !active {
		return
	}
	if err := d.Drain(); err != nil {
		logger.Warn("Failed to drain audio device", "error", err)
	}
}

// cleanup 把设备资源尽快还给系统，先检查状态再操作
func (g *deviceGuard) cleanup(logger *slog.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false

	if g.dev.State() == audio.StateActive {
		if err := g.dev.Stop(); err != nil {
			logger.Warn("Failed to stop audio device", "error", err)
		}
	}
	switch g.dev.State() {
	case audio.StateReleased, audio.StateUninitialized:
		return
	}
	if err := g.dev.Release(); err != nil {
		logger.Warn("Failed to release audio device", "error", err)
		return
	}
	logger.Debug("Audio device released")
}

// workerCore 发送与接收工作者共用的生命周期
type workerCore struct {
	guard     deviceGuard
	startOnce sync.Once
	exitOnce  sync.Once
	done      chan struct{}
	session   string
	logger    *slog.Logger
	onExit    func()
}

func (c *workerCore) init(kind string, dev audio.Device, logger *slog.Logger) {
	c.guard.dev = dev
	c.done = make(chan struct{})
	c.session = uuid.NewString()
	c.logger = logger.With("worker", kind, "session", c.session)
}

func (c *workerCore) exit() {
	c.exitOnce.Do(func() {
		if c.onExit != nil {
			c.onExit()
		}
	})
}

func (c *workerCore) launch(run func()) {
	c.startOnce.Do(func() {
		c.guard.arm()
		go func() {
			defer close(c.done)
			defer c.exit()
			defer c.guard.cleanup(c.logger)
			run()
		}()
	})
}

func (c *workerCore) Done() <-chan struct{} { return c.done }

func (c *workerCore) Session() string { return c.session }

func (c *workerCore) Stop(ctx context.Context) error {
	if err := c.guard.halt(); err != nil {
		c.logger.Warn("Failed to stop audio device", "error", err)
	}
	// 从未启动的工作者直接视为已退出
	c.startOnce.Do(func() { close(c.done) })

	select {
	case <-c.done:
	case <-ctx.Done():
		c.logger.Error("Failed to join worker, leaving it detached", "error", ctx.Err())
		return fmt.Errorf("%w: %w", ErrJoinInterrupted, ctx.Err())
	}

	c.guard.cleanup(c.logger)
	c.exit()
	return nil
}
