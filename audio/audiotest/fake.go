// Package audiotest 提供测试用的脚本化音频设备与平台
package audiotest

import (
	"fmt"
	"sync"

	"github.com/sdsai/airqso-go/audio"
)

// ReadStep FakeDevice.Read 的一次脚本化结果。Samples 非nil时复制样本并返回个数，
// 否则返回 Code。
type ReadStep struct {
	Samples []int16
	Code    int
}

// FakeDevice 内存中的 audio.Device，按顺序记录每次生命周期调用和写入
type FakeDevice struct {
	mu         sync.Mutex
	cond       *sync.Cond
	cfg        audio.DeviceConfig
	bufferSize int
	state      audio.State

	calls       []string
	script      []ReadStep
	writeScript []int
	written     []int16
	queued      []int16
	discarded   []int16
	releases    int

	// BlockReads 让脚本耗尽后的 Read 一直等到 Stop，像一个没人说话的麦克风。
	// 否则 Read 返回 ErrorEnd。
	BlockReads bool
	// Buffered 让写入先进入待播放队列，像真实声卡的输出缓冲区：
	// Drain 把队列播完，Stop 直接丢弃。
	Buffered bool
}

var (
	_ audio.Device  = (*FakeDevice)(nil)
	_ audio.Drainer = (*FakeDevice)(nil)
)

func NewFakeDevice(cfg audio.DeviceConfig, bufferSize int, script ...ReadStep) *FakeDevice {
	d := &FakeDevice{
		cfg:        cfg,
		bufferSize: bufferSize,
		state:      audio.StateInitialized,
		script:     script,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *FakeDevice) Config() audio.DeviceConfig { return d.cfg }

func (d *FakeDevice) BufferSize() int { return d.bufferSize }

func (d *FakeDevice) State() audio.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetState 强制设置状态，例如模拟构造后仍未初始化的设备
func (d *FakeDevice) SetState(s audio.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

// SetWriteScript 设置后续 Write 的返回值：正数表示最多接受这么多样本，
// 0 或负数原样返回且不接受任何样本。脚本耗尽后全部接受。
func (d *FakeDevice) SetWriteScript(codes ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeScript = append([]int(nil), codes...)
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "start")
	if d.state == audio.StateReleased {
		return audio.ErrDeviceReleased
	}
	d.state = audio.StateActive
	return nil
}

// Stop 立即停止，尚未播放的样本被丢弃
func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "stop")
	if d.state == audio.StateActive {
		d.state = audio.StateStopped
	}
	d.discarded = append(d.discarded, d.queued...)
	d.queued = nil
	d.cond.Broadcast()
	return nil
}

// Drain 播完队列中的样本后停止
func (d *FakeDevice) Drain() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "drain")
	d.written = append(d.written, d.queued...)
	d.queued = nil
	if d.state == audio.StateActive {
		d.state = audio.StateStopped
	}
	d.cond.Broadcast()
	return nil
}

func (d *FakeDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "release")
	d.releases++
	d.state = audio.StateReleased
	d.discarded = append(d.discarded, d.queued...)
	d.queued = nil
	d.cond.Broadcast()
	return nil
}

func (d *FakeDevice) Read(samples []int16) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.state != audio.StateActive {
			return audio.ErrorInvalidOperation
		}
		if len(d.script) > 0 {
			step := d.script[0]
			d.script = d.script[1:]
			if step.Samples == nil {
				return step.Code
			}
			return copy(samples, step.Samples)
		}
		if !d.BlockReads {
			return audio.ErrorEnd
		}
		d.cond.Wait()
	}
}

func (d *FakeDevice) Write(samples []int16) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != audio.StateActive {
		return audio.ErrorInvalidOperation
	}
	n := len(samples)
	if len(d.writeScript) > 0 {
		code := d.writeScript[0]
		d.writeScript = d.writeScript[1:]
		if code <= 0 {
			d.calls = append(d.calls, fmt.Sprintf("write-fail:%d", code))
			return code
		}
		n = min(n, code)
	}
	d.calls = append(d.calls, fmt.Sprintf("write:%d", n))
	if d.Buffered {
		d.queued = append(d.queued, samples[:n]...)
	} else {
		d.written = append(d.written, samples[:n]...)
	}
	return n
}

// Calls 返回记录的调用序列
func (d *FakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Written 返回已经播放出去的样本
func (d *FakeDevice) Written() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int16(nil), d.written...)
}

// Discarded 返回写入后未播放就被丢弃的样本
func (d *FakeDevice) Discarded() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int16(nil), d.discarded...)
}

// Releases 统计 Release 调用次数
func (d *FakeDevice) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

// Attempt 通过 FakePlatform 进行的一次构造尝试
type Attempt struct {
	Direction  audio.Direction
	Config     audio.DeviceConfig
	BufferSize int
}

// FakePlatform 可配置的 audio.Platform。不设置任何钩子时所有组合都受支持，
// 最小缓冲区为1024字节。
type FakePlatform struct {
	mu sync.Mutex

	// MinBuffer 覆盖最小缓冲区查询
	MinBuffer func(dir audio.Direction, rate int) int
	// Fail 让指定组合的构造返回错误
	Fail func(dir audio.Direction, cfg audio.DeviceConfig) bool
	// FailWithDevice 与 Fail 相同，但同时返回已构造的设备
	FailWithDevice func(dir audio.Direction, cfg audio.DeviceConfig) bool
	// Uninitialized 让构造出的设备处于 StateUninitialized
	Uninitialized func(dir audio.Direction, cfg audio.DeviceConfig) bool
	// Script 交给平台构造的每个录音设备
	Script []ReadStep
	// WriteScript 交给平台构造的每个播放设备，见 FakeDevice.SetWriteScript
	WriteScript []int
	// BlockReads 复制到每个录音设备
	BlockReads bool
	// Buffered 复制到每个设备
	Buffered bool

	attempts []Attempt
	devices  []*FakeDevice
}

var _ audio.Platform = (*FakePlatform)(nil)

func (p *FakePlatform) Name() string { return "fake" }

func (p *FakePlatform) MinBufferSize(dir audio.Direction, rate int, _ audio.ChannelLayout, _ audio.Encoding) int {
	if p.MinBuffer != nil {
		return p.MinBuffer(dir, rate)
	}
	return 1024
}

func (p *FakePlatform) OpenPlayback(cfg audio.DeviceConfig, bufferSize int) (audio.Device, error) {
	return p.open(audio.Playback, cfg, bufferSize)
}

func (p *FakePlatform) OpenCapture(cfg audio.DeviceConfig, bufferSize int) (audio.Device, error) {
	return p.open(audio.Capture, cfg, bufferSize)
}

func (p *FakePlatform) open(dir audio.Direction, cfg audio.DeviceConfig, bufferSize int) (audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, Attempt{Direction: dir, Config: cfg, BufferSize: bufferSize})

	if p.Fail != nil && p.Fail(dir, cfg) {
		return nil, fmt.Errorf("fake: %s %d Hz rejected", dir, cfg.SampleRate)
	}

	var script []ReadStep
	if dir == audio.Capture {
		script = append(script, p.Script...)
	}
	dev := NewFakeDevice(cfg, bufferSize, script...)
	dev.BlockReads = p.BlockReads
	dev.Buffered = p.Buffered
	if dir == audio.Playback && len(p.WriteScript) > 0 {
		dev.SetWriteScript(p.WriteScript...)
	}
	if p.Uninitialized != nil && p.Uninitialized(dir, cfg) {
		dev.SetState(audio.StateUninitialized)
	}
	p.devices = append(p.devices, dev)

	if p.FailWithDevice != nil && p.FailWithDevice(dir, cfg) {
		return dev, fmt.Errorf("fake: %s %d Hz half built", dir, cfg.SampleRate)
	}
	return dev, nil
}

// Attempts 按顺序返回每次构造尝试
func (p *FakePlatform) Attempts() []Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Attempt(nil), p.attempts...)
}

// Devices 返回平台构造过的所有设备，包括被放弃的
func (p *FakePlatform) Devices() []*FakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeDevice(nil), p.devices...)
}

// LastDevice 返回最近构造的设备，没有时返回nil
func (p *FakePlatform) LastDevice() *FakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.devices) == 0 {
		return nil
	}
	return p.devices[len(p.devices)-1]
}
