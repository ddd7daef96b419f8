package audio

import (
	"errors"
	"fmt"
)

// 平台读写返回码，与底层音频原语保持一致
const (
	Success               = 0
	ErrorEnd              = -1 // 流结束
	ErrorBadValue         = -2 // 参数无效/配置不支持
	ErrorInvalidOperation = -3 // 设备状态不允许该操作
)

var (
	ErrNoDeviceAvailable = errors.New("no audio device available")
	ErrDeviceOperation   = errors.New("audio device operation failed")
	ErrDeviceReleased    = errors.New("audio device released")
)

// DeviceError 将平台返回码转换为流级别错误
type DeviceError struct {
	Op   string
	Code int
}

func (e *DeviceError) Error() string {
	switch e.Code {
	case ErrorInvalidOperation:
		return fmt.Sprintf("%s: invalid operation", e.Op)
	case ErrorBadValue:
		return fmt.Sprintf("%s: bad value", e.Op)
	default:
		return fmt.Sprintf("%s: device error %d", e.Op, e.Code)
	}
}

func (e *DeviceError) Unwrap() error { return ErrDeviceOperation }

// Direction 音频方向
type Direction int

const (
	Capture Direction = iota
	Playback
)

func (d Direction) String() string {
	if d == Playback {
		return "playback"
	}
	return "capture"
}

// Encoding 采样编码，目前只支持16位PCM
type Encoding int

const (
	EncodingPCM16 Encoding = 16
)

func (e Encoding) BytesPerSample() int { return int(e) / 8 }

// ChannelLayout 声道布局，目前只支持单声道
type ChannelLayout int

const (
	ChannelMono ChannelLayout = 1
)

func (c ChannelLayout) Channels() int { return int(c) }

// CaptureSource 录音来源，按优先级排列
type CaptureSource int

const (
	SourceDefault CaptureSource = iota
	SourceCamcorder
	SourceMic
)

func (s CaptureSource) String() string {
	switch s {
	case SourceCamcorder:
		return "camcorder"
	case SourceMic:
		return "mic"
	default:
		return "default"
	}
}

// ParseCaptureSource 解析配置中的录音来源名称
func ParseCaptureSource(name string) (CaptureSource, error) {
	switch name {
	case "camcorder", "camera":
		return SourceCamcorder, nil
	case "mic", "microphone":
		return SourceMic, nil
	case "default", "":
		return SourceDefault, nil
	}
	return SourceDefault, fmt.Errorf("unknown capture source: %q", name)
}

// DeviceConfig 选定后不可变的设备配置
type DeviceConfig struct {
	SampleRate int
	Encoding   Encoding
	Layout     ChannelLayout
	Source     CaptureSource // 仅录音设备使用
}

func (c DeviceConfig) FrameBytes() int {
	return c.Encoding.BytesPerSample() * c.Layout.Channels()
}

func (c DeviceConfig) String() string {
	return fmt.Sprintf("%d Hz, %d bit, %d ch, source %s",
		c.SampleRate, int(c.Encoding), c.Layout.Channels(), c.Source)
}

// State 设备生命周期状态
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive // playing 或 recording
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return "uninitialized"
	}
}
