package core

import (
	"io"
	"log/slog"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/pkg/bytestream"
	"github.com/sdsai/airqso-go/pkg/interfaces"
)

// Bpsk 组合设备探测、编解码器与收发字节流，按需创建并启动工作者。
// 它本身不接触硬件。
//
// 每个方向同一时刻只允许一个工作者；启用半双工后发送与接收也互斥。
type Bpsk struct {
	prober     *audio.Prober
	codec      interfaces.Codec
	in         bytestream.Source
	out        io.Writer
	logger     *slog.Logger
	controller audio.Controller

	exclusive        bool
	chunkSize        int
	preambleSymbols  int
	postambleSymbols int
}

// Option 配置 Bpsk
type Option func(*Bpsk)

// WithExclusive 启用半双工，避免本机扬声器的声音被本机麦克风解码
func WithExclusive(exclusive bool) Option {
	return func(b *Bpsk) { b.exclusive = exclusive }
}

func WithChunkSize(n int) Option {
	return func(b *Bpsk) { b.chunkSize = n }
}

func WithPreamble(symbols int) Option {
	return func(b *Bpsk) { b.preambleSymbols = symbols }
}

func WithPostamble(symbols int) Option {
	return func(b *Bpsk) { b.postambleSymbols = symbols }
}

// NewBpsk 创建生命周期控制器，in 与 out 由调用方持有，工作者不会关闭它们
func NewBpsk(
	prober *audio.Prober,
	codec interfaces.Codec,
	in bytestream.Source,
	out io.Writer,
	logger *slog.Logger,
	opts ...Option,
) *Bpsk {
	b := &Bpsk{
		prober: prober,
		codec:  codec,
		in:     in,
		out:    out,
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.controller = audio.NewController(b.exclusive)
	return b
}

// StartTransmit 以 PSK31 标准符号率开始发送
func (b *Bpsk) StartTransmit(hz int) (*TransmitWorker, error) {
	return b.StartTransmitRate(hz, PSK31SymbolRate)
}

// StartTransmitRate 创建并启动发送工作者
func (b *Bpsk) StartTransmitRate(hz int, symbolRate float64) (*TransmitWorker, error) {
	if !b.controller.StartTransmitting() {
		return nil, ErrChannelBusy
	}

	w, err := NewTransmitWorker(b.prober, b.codec, b.in, TransmitOptions{
		Hz:               hz,
		SymbolRate:       symbolRate,
		ChunkSize:        b.chunkSize,
		PreambleSymbols:  b.preambleSymbols,
		PostambleSymbols: b.postambleSymbols,
	}, b.logger)
	if err != nil {
		b.controller.StopTransmitting()
		return nil, err
	}
	w.onExit = b.controller.StopTransmitting
	w.Start()
	return w, nil
}

// StartReceive 以 PSK31 标准符号率开始接收
func (b *Bpsk) StartReceive(hz int) (*ReceiveWorker, error) {
	return b.StartReceiveRate(hz, PSK31SymbolRate)
}

// StartReceiveRate 创建并启动接收工作者
func (b *Bpsk) StartReceiveRate(hz int, symbolRate float64) (*ReceiveWorker, error) {
	if !b.controller.StartReceiving() {
		return nil, ErrChannelBusy
	}

	w, err := NewReceiveWorker(b.prober, b.codec, b.out, ReceiveOptions{
		Hz:         hz,
		SymbolRate: symbolRate,
	}, b.logger)
	if err != nil {
		b.controller.StopReceiving()
		return nil, err
	}
	w.onExit = b.controller.StopReceiving
	w.Start()
	return w, nil
}

func (b *Bpsk) IsTransmitting() bool { return b.controller.IsTransmitting() }

func (b *Bpsk) IsReceiving() bool { return b.controller.IsReceiving() }
