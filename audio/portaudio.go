package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlatform 基于PortAudio阻塞式流的音频平台
type PortAudioPlatform struct {
	logger *slog.Logger
}

var (
	_ Platform   = (*PortAudioPlatform)(nil)
	_ Enumerator = (*PortAudioPlatform)(nil)
	_ Drainer    = (*paDevice)(nil)
)

// NewPortAudioPlatform 创建PortAudio平台
func NewPortAudioPlatform(logger *slog.Logger) *PortAudioPlatform {
	return &PortAudioPlatform{logger: logger.With("backend", "portaudio")}
}

func (p *PortAudioPlatform) Name() string { return "portaudio" }

func (p *PortAudioPlatform) MinBufferSize(dir Direction, sampleRate int, layout ChannelLayout, enc Encoding) int {
	if enc != EncodingPCM16 {
		return ErrorBadValue
	}
	if err := portaudio.Initialize(); err != nil {
		p.logger.Error("failed to initialize PortAudio", "error", err)
		return ErrorBadValue
	}
	defer portaudio.Terminate()

	params, err := streamParameters(dir, SourceDefault, sampleRate, layout.Channels())
	if err != nil {
		return ErrorBadValue
	}
	if err := portaudio.IsFormatSupported(params, make([]int16, layout.Channels())); err != nil {
		p.logger.Debug("format not supported", "direction", dir, "rate", sampleRate, "error", err)
		return ErrorBadValue
	}

	latency := params.Input.Latency
	if dir == Playback {
		latency = params.Output.Latency
	}
	frames := max(int(latency.Seconds()*float64(sampleRate)), 256)
	return frames * enc.BytesPerSample() * layout.Channels()
}

func (p *PortAudioPlatform) OpenPlayback(cfg DeviceConfig, bufferSize int) (Device, error) {
	return p.open(Playback, cfg, bufferSize)
}

func (p *PortAudioPlatform) OpenCapture(cfg DeviceConfig, bufferSize int) (Device, error) {
	return p.open(Capture, cfg, bufferSize)
}

func (p *PortAudioPlatform) open(dir Direction, cfg DeviceConfig, bufferSize int) (Device, error) {
	// 初始化PortAudio，由设备释放时终止
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	params, err := streamParameters(dir, cfg.Source, cfg.SampleRate, cfg.Layout.Channels())
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	bufferFrames := bufferSize / cfg.FrameBytes()
	latency := time.Duration(float64(bufferFrames) / float64(cfg.SampleRate) * float64(time.Second))
	if dir == Capture {
		params.Input.Latency = latency
	} else {
		params.Output.Latency = latency
	}
	// 每次阻塞读写的帧数，约为缓冲区的十分之一
	params.FramesPerBuffer = max(bufferFrames/10, 64)

	frames := make([]int16, params.FramesPerBuffer*cfg.Layout.Channels())
	stream, err := portaudio.OpenStream(params, frames)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	d := &paDevice{
		dir:        dir,
		cfg:        cfg,
		bufferSize: bufferSize,
		stream:     stream,
		frames:     frames,
		logger:     p.logger.With("direction", dir, "rate", cfg.SampleRate),
	}
	d.state.Store(int32(StateInitialized))
	return d, nil
}

// Devices 列出PortAudio可见的设备
func (p *PortAudioPlatform) Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefaultInput:    defIn != nil && d.Index == defIn.Index,
			IsDefaultOutput:   defOut != nil && d.Index == defOut.Index,
		})
	}
	return infos, nil
}

func streamParameters(dir Direction, source CaptureSource, sampleRate, channels int) (portaudio.StreamParameters, error) {
	var params portaudio.StreamParameters
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = portaudio.FramesPerBufferUnspecified

	if dir == Playback {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return params, fmt.Errorf("no output device: %w", err)
		}
		params.Output = portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		}
		return params, nil
	}

	dev, err := inputDevice(source)
	if err != nil {
		return params, err
	}
	params.Input = portaudio.StreamDeviceParameters{
		Device:   dev,
		Channels: channels,
		Latency:  dev.DefaultLowInputLatency,
	}
	return params, nil
}

var sourceKeywords = map[CaptureSource][]string{
	SourceCamcorder: {"camera", "webcam", "usb video"},
	SourceMic:       {"mic"},
}

// inputDevice 按录音来源选择输入设备
func inputDevice(source CaptureSource) (*portaudio.DeviceInfo, error) {
	if source == SourceDefault {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		name := strings.ToLower(d.Name)
		for _, kw := range sourceKeywords[source] {
			if strings.Contains(name, kw) {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("no %s input device", source)
}

// paDevice PortAudio阻塞式流实现的设备
type paDevice struct {
	dir        Direction
	cfg        DeviceConfig
	bufferSize int
	stream     *portaudio.Stream
	frames     []int16
	logger     *slog.Logger

	state atomic.Int32

	// pending 只由读写所在的单个goroutine访问
	pending []int16

	releaseOnce sync.Once
}

func (d *paDevice) Config() DeviceConfig { return d.cfg }

func (d *paDevice) BufferSize() int { return d.bufferSize }

func (d *paDevice) State() State { return State(d.state.Load()) }

func (d *paDevice) Start() error {
	if d.State() == StateReleased {
		return ErrDeviceReleased
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	d.pending = d.pending[:0]
	d.state.Store(int32(StateActive))
	return nil
}

// Stop 中止流并丢弃未播放的样本，让阻塞中的 Read/Write 尽快返回
func (d *paDevice) Stop() error {
	if !d.state.CompareAndSwap(int32(StateActive), int32(StateStopped)) {
		return nil
	}
	if err := d.stream.Abort(); err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return nil
}

// Drain 补零写出不足一帧的尾部，然后等PortAudio播完缓冲区再停止
func (d *paDevice) Drain() error {
	if d.dir != Playback {
		return d.Stop()
	}
	if d.State() != StateActive {
		return nil
	}
	if len(d.pending) > 0 {
		copy(d.frames, d.pending)
		clear(d.frames[len(d.pending):])
		d.pending = d.pending[:0]
		if err := d.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			if d.State() != StateActive {
				return nil
			}
			return fmt.Errorf("failed to flush audio stream: %w", err)
		}
	}
	if !d.state.CompareAndSwap(int32(StateActive), int32(StateStopped)) {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("failed to drain audio stream: %w", err)
	}
	return nil
}

func (d *paDevice) Release() error {
	var err error
	d.releaseOnce.Do(func() {
		d.state.Store(int32(StateReleased))
		if cerr := d.stream.Close(); cerr != nil {
			err = fmt.Errorf("failed to close audio stream: %w", cerr)
		}
		portaudio.Terminate()
	})
	return err
}

func (d *paDevice) Read(samples []int16) int {
	if d.State() != StateActive {
		return ErrorInvalidOperation
	}
	if len(d.pending) == 0 {
		if err := d.stream.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				if d.State() != StateActive {
					return ErrorInvalidOperation
				}
				d.logger.Error("audio stream read failed", "error", err)
				return ErrorInvalidOperation
			}
			d.logger.Debug("input overflowed")
		}
		d.pending = append(d.pending[:0], d.frames...)
	}
	n := copy(samples, d.pending)
	d.pending = d.pending[n:]
	return n
}

func (d *paDevice) Write(samples []int16) int {
	if d.State() != StateActive {
		return ErrorInvalidOperation
	}
	d.pending = append(d.pending, samples...)
	for len(d.pending) >= len(d.frames) {
		copy(d.frames, d.pending)
		if err := d.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			if d.State() != StateActive {
				return ErrorInvalidOperation
			}
			d.logger.Error("audio stream write failed", "error", err)
			return ErrorInvalidOperation
		}
		d.pending = d.pending[len(d.frames):]
	}
	return len(samples)
}
