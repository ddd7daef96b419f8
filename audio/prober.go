package audio

import (
	"fmt"
	"log/slog"
)

// symbolsBuffered 缓冲区至少容纳的符号周期数
const symbolsBuffered = 10

// ProberConfig 设备搜索空间，顺序即优先级
type ProberConfig struct {
	SampleRates []int
	Encodings   []Encoding
	Layouts     []ChannelLayout
	Sources     []CaptureSource
}

// DefaultProberConfig 返回默认搜索空间
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		SampleRates: []int{44100, 22050, 11025, 8000},
		Encodings:   []Encoding{EncodingPCM16},
		Layouts:     []ChannelLayout{ChannelMono},
		Sources:     []CaptureSource{SourceCamcorder, SourceMic, SourceDefault},
	}
}

// Prober 在给定平台上按固定顺序搜索第一个可用的设备配置
type Prober struct {
	platform Platform
	config   ProberConfig
	logger   *slog.Logger
}

// NewProber 创建设备探测器，搜索列表会被复制，之后不可修改
func NewProber(platform Platform, cfg ProberConfig, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		platform: platform,
		config: ProberConfig{
			SampleRates: append([]int(nil), cfg.SampleRates...),
			Encodings:   append([]Encoding(nil), cfg.Encodings...),
			Layouts:     append([]ChannelLayout(nil), cfg.Layouts...),
			Sources:     append([]CaptureSource(nil), cfg.Sources...),
		},
		logger: logger.With("platform", platform.Name()),
	}
}

// TargetBufferSize 计算容纳约10个符号周期所需的缓冲区大小
func TargetBufferSize(dir Direction, sampleRate int, symbolRate float64) int {
	slots := float64(symbolsBuffered)
	if dir == Playback {
		slots *= 2
	}
	return int(float64(sampleRate) / symbolRate * slots)
}

// FindCaptureDevice 搜索可用的录音设备
func (p *Prober) FindCaptureDevice(symbolRate float64) (Device, error) {
	for _, rate := range p.config.SampleRates {
		for _, enc := range p.config.Encodings {
			for _, layout := range p.config.Layouts {
				for _, source := range p.config.Sources {
					cfg := DeviceConfig{SampleRate: rate, Encoding: enc, Layout: layout, Source: source}
					if dev := p.try(Capture, cfg, symbolRate); dev != nil {
						return dev, nil
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("failed to find recording resource: %w", ErrNoDeviceAvailable)
}

// FindPlaybackDevice 搜索可用的播放设备
func (p *Prober) FindPlaybackDevice(symbolRate float64) (Device, error) {
	for _, rate := range p.config.SampleRates {
		for _, enc := range p.config.Encodings {
			for _, layout := range p.config.Layouts {
				cfg := DeviceConfig{SampleRate: rate, Encoding: enc, Layout: layout}
				if dev := p.try(Playback, cfg, symbolRate); dev != nil {
					return dev, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("failed to find playback resource: %w", ErrNoDeviceAvailable)
}

// try 尝试单个组合，任何失败都返回nil，让搜索继续
func (p *Prober) try(dir Direction, cfg DeviceConfig, symbolRate float64) (dev Device) {
	attrs := []any{
		"direction", dir,
		"rate", cfg.SampleRate,
		"bits", int(cfg.Encoding),
		"channels", cfg.Layout.Channels(),
	}
	if dir == Capture {
		attrs = append(attrs, "source", cfg.Source)
	}
	p.logger.Debug("Attempting audio config", attrs...)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Audio config panicked, keep trying", append(attrs, "panic", r)...)
			dev = nil
		}
	}()

	minSize := p.platform.MinBufferSize(dir, cfg.SampleRate, cfg.Layout, cfg.Encoding)
	if minSize == ErrorBadValue || minSize <= 0 {
		return nil
	}
	bufferSize := max(minSize, TargetBufferSize(dir, cfg.SampleRate, symbolRate))

	var err error
	if dir == Capture {
		dev, err = p.platform.OpenCapture(cfg, bufferSize)
	} else {
		dev, err = p.platform.OpenPlayback(cfg, bufferSize)
	}
	if err != nil {
		p.logger.Error("Failed to open audio device, keep trying", append(attrs, "error", err)...)
		// 出错时平台仍可能返回了半成品设备
		if dev != nil {
			_ = dev.Release()
		}
		return nil
	}
	if dev == nil {
		return nil
	}
	if dev.State() != StateInitialized {
		p.logger.Debug("Audio device not initialized", attrs...)
		_ = dev.Release()
		return nil
	}

	p.logger.Info("Chose audio config", append(attrs, "buffer_size", bufferSize)...)
	return dev
}
