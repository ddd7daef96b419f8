// audio/interface.go
package audio

// Controller 定义收发占用控制接口
type Controller interface {
	StartTransmitting() bool
	StopTransmitting()
	StartReceiving() bool
	StopReceiving()
	IsTransmitting() bool
	IsReceiving() bool
}

// Device 定义单个录音或播放硬件句柄
//
// Read/Write 是阻塞调用：读取会一直等到有样本或设备被停止，
// 写入会一直等到缓冲区有空间。返回值为样本数或负的错误码。
// 在另一个goroutine中调用 Stop 会让正在进行的阻塞调用尽快返回。
type Device interface {
	Config() DeviceConfig
	BufferSize() int
	State() State
	Start() error
	Stop() error
	Release() error
	Read(samples []int16) int
	Write(samples []int16) int
}

// Drainer 可以先播完已排队样本再停止的播放设备
//
// 正常结束发送时使用 Drain，让结束码完整播出；Stop 仍然立即中止并丢弃缓冲。
// Drain 期间另一个goroutine调用 Stop 会让它尽快返回。
type Drainer interface {
	Drain() error
}

// Platform 定义音频平台能力：最小缓冲区查询与设备构造
type Platform interface {
	Name() string
	// MinBufferSize 返回最小可用缓冲区字节数，不支持的组合返回 ErrorBadValue
	MinBufferSize(dir Direction, sampleRate int, layout ChannelLayout, enc Encoding) int
	OpenPlayback(cfg DeviceConfig, bufferSize int) (Device, error)
	OpenCapture(cfg DeviceConfig, bufferSize int) (Device, error)
}

// DeviceInfo 平台设备描述，用于列出设备
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// Enumerator 可以列出设备的平台
type Enumerator interface {
	Devices() ([]DeviceInfo, error)
}
