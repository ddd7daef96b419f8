package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavPlatform 以WAV文件代替声卡：录音从 InputPath 读取，播放写入 OutputPath。
// 用于离线回环测试和没有声卡的环境。
type WavPlatform struct {
	InputPath  string
	OutputPath string
	// Realtime 让播放按采样率节奏写入，避免空闲前导码瞬间写满磁盘
	Realtime bool

	logger *slog.Logger
}

var _ Platform = (*WavPlatform)(nil)

func NewWavPlatform(inputPath, outputPath string, logger *slog.Logger) *WavPlatform {
	return &WavPlatform{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Realtime:   true,
		logger:     logger.With("backend", "wav"),
	}
}

func (p *WavPlatform) Name() string { return "wav" }

// MinBufferSize 录音只接受与输入文件一致的单声道16位格式
func (p *WavPlatform) MinBufferSize(dir Direction, sampleRate int, layout ChannelLayout, enc Encoding) int {
	if enc != EncodingPCM16 {
		return ErrorBadValue
	}
	frameBytes := enc.BytesPerSample() * layout.Channels()

	if dir == Playback {
		if p.OutputPath == "" {
			return ErrorBadValue
		}
		return max(sampleRate/100, 1) * frameBytes
	}

	if p.InputPath == "" {
		return ErrorBadValue
	}
	f, err := os.Open(p.InputPath)
	if err != nil {
		p.logger.Debug("could not open audio file", "audioFile", p.InputPath, "error", err)
		return ErrorBadValue
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return ErrorBadValue
	}
	if int(decoder.SampleRate) != sampleRate ||
		int(decoder.NumChans) != layout.Channels() ||
		int(decoder.BitDepth) != int(enc) {
		return ErrorBadValue
	}
	return max(sampleRate/100, 1) * frameBytes
}

func (p *WavPlatform) OpenCapture(cfg DeviceConfig, bufferSize int) (Device, error) {
	f, err := os.Open(p.InputPath)
	if err != nil {
		return nil, fmt.Errorf("could not open audio file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, errors.New("error while decoding audio file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not get full PCM buffer from audio file: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	p.logger.Debug("loaded audio file",
		"audioFile", p.InputPath,
		"sampleRate", decoder.SampleRate,
		"samples", len(samples))

	return &wavDevice{
		dir:        Capture,
		cfg:        cfg,
		bufferSize: bufferSize,
		samples:    samples,
		state:      StateInitialized,
	}, nil
}

func (p *WavPlatform) OpenPlayback(cfg DeviceConfig, bufferSize int) (Device, error) {
	f, err := os.Create(p.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("could not create audio file: %w", err)
	}
	encoder := wav.NewEncoder(f, cfg.SampleRate, int(cfg.Encoding), cfg.Layout.Channels(), 1)

	return &wavDevice{
		dir:        Playback,
		cfg:        cfg,
		bufferSize: bufferSize,
		file:       f,
		encoder:    encoder,
		format:     &goaudio.Format{SampleRate: cfg.SampleRate, NumChannels: cfg.Layout.Channels()},
		realtime:   p.Realtime,
		state:      StateInitialized,
	}, nil
}

// wavDevice WAV文件实现的设备
type wavDevice struct {
	dir        Direction
	cfg        DeviceConfig
	bufferSize int

	mu    sync.Mutex
	state State

	// 录音
	samples []int16
	pos     int

	// 播放
	file     *os.File
	encoder  *wav.Encoder
	format   *goaudio.Format
	realtime bool
	started  time.Time
	played   int
}

func (d *wavDevice) Config() DeviceConfig { return d.cfg }

func (d *wavDevice) BufferSize() int { return d.bufferSize }

func (d *wavDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *wavDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReleased {
		return ErrDeviceReleased
	}
	d.state = StateActive
	d.started = time.Now()
	d.played = 0
	return nil
}

func (d *wavDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateActive {
		d.state = StateStopped
	}
	return nil
}

func (d *wavDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReleased {
		return nil
	}
	d.state = StateReleased
	if d.dir == Playback {
		if err := d.encoder.Close(); err != nil {
			d.file.Close()
			return fmt.Errorf("failed to finalize audio file: %w", err)
		}
		return d.file.Close()
	}
	return nil
}

func (d *wavDevice) Read(samples []int16) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateActive {
		return ErrorInvalidOperation
	}
	if d.pos >= len(d.samples) {
		return ErrorEnd
	}
	n := copy(samples, d.samples[d.pos:])
	d.pos += n
	return n
}

func (d *wavDevice) Write(samples []int16) int {
	d.mu.Lock()
	if d.state != StateActive {
		d.mu.Unlock()
		return ErrorInvalidOperation
	}
	buf := &goaudio.IntBuffer{
		Format:         d.format,
		Data:           make([]int, len(samples)),
		SourceBitDepth: int(d.cfg.Encoding),
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := d.encoder.Write(buf); err != nil {
		d.mu.Unlock()
		return ErrorInvalidOperation
	}
	d.played += len(samples)
	due := d.started.Add(time.Duration(float64(d.played) / float64(d.cfg.SampleRate) * float64(time.Second)))
	d.mu.Unlock()

	// 锁外等待，Stop 不会被阻塞
	if d.realtime {
		time.Sleep(time.Until(due))
	}
	return len(samples)
}
