package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoPlatform 基于miniaudio回调设备的音频平台
//
// miniaudio 只提供回调接口，这里用 sampleRing 把回调转换成阻塞式读写。
type MalgoPlatform struct {
	logger *slog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

var (
	_ Platform   = (*MalgoPlatform)(nil)
	_ Enumerator = (*MalgoPlatform)(nil)
	_ Drainer    = (*maDevice)(nil)
)

// NewMalgoPlatform 创建malgo平台，音频上下文在第一次使用时初始化
func NewMalgoPlatform(logger *slog.Logger) *MalgoPlatform {
	return &MalgoPlatform{logger: logger.With("backend", "malgo")}
}

func (p *MalgoPlatform) Name() string { return "malgo" }

func (p *MalgoPlatform) context() (*malgo.AllocatedContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx, nil
	}

	// 初始化malgo上下文
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		p.logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	p.ctx = ctx
	return ctx, nil
}

// Close 释放音频上下文，须在所有设备释放之后调用
func (p *MalgoPlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}

// MinBufferSize miniaudio会在内部完成采样率转换，因此任何正采样率都可用，
// 最小缓冲区为一个10ms的周期
func (p *MalgoPlatform) MinBufferSize(_ Direction, sampleRate int, layout ChannelLayout, enc Encoding) int {
	if enc != EncodingPCM16 || sampleRate <= 0 {
		return ErrorBadValue
	}
	return max(sampleRate/100, 1) * enc.BytesPerSample() * layout.Channels()
}

func (p *MalgoPlatform) OpenPlayback(cfg DeviceConfig, bufferSize int) (Device, error) {
	return p.open(Playback, cfg, bufferSize)
}

func (p *MalgoPlatform) OpenCapture(cfg DeviceConfig, bufferSize int) (Device, error) {
	return p.open(Capture, cfg, bufferSize)
}

func (p *MalgoPlatform) open(dir Direction, cfg DeviceConfig, bufferSize int) (Device, error) {
	ctx, err := p.context()
	if err != nil {
		return nil, err
	}

	d := &maDevice{
		dir:        dir,
		cfg:        cfg,
		bufferSize: bufferSize,
		ring:       newSampleRing(bufferSize / cfg.FrameBytes()),
		logger:     p.logger.With("direction", dir, "rate", cfg.SampleRate),
	}

	// 创建设备配置
	var deviceConfig malgo.DeviceConfig
	if dir == Capture {
		deviceConfig = malgo.DefaultDeviceConfig(malgo.Capture)
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = uint32(cfg.Layout.Channels())
		if cfg.Source != SourceDefault {
			id, err := p.captureDevice(ctx, cfg.Source)
			if err != nil {
				return nil, err
			}
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	} else {
		deviceConfig = malgo.DefaultDeviceConfig(malgo.Playback)
		deviceConfig.Playback.Format = malgo.FormatS16
		deviceConfig.Playback.Channels = uint32(cfg.Layout.Channels())
	}
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(max(cfg.SampleRate/100, 1))

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio device: %w", err)
	}
	d.device = device
	d.state = StateInitialized
	return d, nil
}

func (p *MalgoPlatform) captureDevice(ctx *malgo.AllocatedContext, source CaptureSource) (malgo.DeviceID, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to list capture devices: %w", err)
	}
	for _, info := range infos {
		name := strings.ToLower(info.Name())
		for _, kw := range sourceKeywords[source] {
			if strings.Contains(name, kw) {
				return info.ID, nil
			}
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("no %s capture device", source)
}

// Devices 列出miniaudio可见的设备
func (p *MalgoPlatform) Devices() ([]DeviceInfo, error) {
	ctx, err := p.context()
	if err != nil {
		return nil, err
	}

	var infos []DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		devices, err := ctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		for _, d := range devices {
			info := DeviceInfo{Name: d.Name()}
			if kind == malgo.Capture {
				info.MaxInputChannels = 1
				info.IsDefaultInput = d.IsDefault != 0
			} else {
				info.MaxOutputChannels = 1
				info.IsDefaultOutput = d.IsDefault != 0
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// maDevice 回调式设备，通过环形缓冲区提供阻塞读写
type maDevice struct {
	dir        Direction
	cfg        DeviceConfig
	bufferSize int
	device     *malgo.Device
	ring       *sampleRing
	logger     *slog.Logger

	mu    sync.Mutex
	state State

	scratch []int16 // 仅在回调中使用
}

func (d *maDevice) Config() DeviceConfig { return d.cfg }

func (d *maDevice) BufferSize() int { return d.bufferSize }

func (d *maDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *maDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReleased {
		return ErrDeviceReleased
	}
	d.ring.reset()
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	d.state = StateActive
	d.logger.Debug("audio device started")
	return nil
}

func (d *maDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateActive {
		return nil
	}
	d.state = StateStopped
	d.ring.close()
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio device: %w", err)
	}
	return nil
}

// Drain 等回调取空环形缓冲区后再停止设备
func (d *maDevice) Drain() error {
	if d.dir == Playback && d.State() == StateActive {
		d.ring.waitEmpty()
	}
	return d.Stop()
}

func (d *maDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReleased {
		return nil
	}
	if d.state == StateActive {
		d.ring.close()
		_ = d.device.Stop()
	}
	d.state = StateReleased
	d.device.Uninit()
	return nil
}

func (d *maDevice) Read(samples []int16) int {
	if d.State() != StateActive {
		return ErrorInvalidOperation
	}
	n, ok := d.ring.read(samples)
	if !ok {
		return ErrorInvalidOperation
	}
	return n
}

func (d *maDevice) Write(samples []int16) int {
	if d.State() != StateActive {
		return ErrorInvalidOperation
	}
	n, ok := d.ring.write(samples)
	if !ok && n == 0 {
		return ErrorInvalidOperation
	}
	return n
}

// onData 设备回调：录音时写入环形缓冲区，播放时从中取出，不足补静音
func (d *maDevice) onData(out, in []byte, _ uint32) {
	if d.dir == Capture {
		d.ring.overwrite(bytesToInt16(in))
		return
	}

	n := len(out) / 2
	if cap(d.scratch) < n {
		d.scratch = make([]int16, n)
	}
	s := d.scratch[:n]
	got := d.ring.drain(s)
	clear(s[got:])
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
}

// bytesToInt16 将小端byte切片转换为int16切片
func bytesToInt16(b []byte) []int16 {
	if len(b)%2 != 0 {
		b = b[:len(b)-1] // 确保长度是偶数
	}

	pcm := make([]int16, len(b)/2)
	for i := 0; i < len(pcm); i++ {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
