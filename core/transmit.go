package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/pkg/bytestream"
	"github.com/sdsai/airqso-go/pkg/interfaces"
)

// TransmitOptions 发送参数
type TransmitOptions struct {
	Hz               int
	SymbolRate       float64
	ChunkSize        int // 每次从输入读取的最大字节数
	PreambleSymbols  int // 没有数据时发送的空闲符号数
	PostambleSymbols int // 结束时发送的结束符号数
}

func (o TransmitOptions) withDefaults() TransmitOptions {
	if o.SymbolRate <= 0 {
		o.SymbolRate = PSK31SymbolRate
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 100
	}
	if o.PreambleSymbols <= 0 {
		o.PreambleSymbols = 10
	}
	if o.PostambleSymbols <= 0 {
		o.PostambleSymbols = 10
	}
	return o
}

// TransmitWorker 持有播放设备与调制器，把输入字节流发送出去
type TransmitWorker struct {
	workerCore
	opts      TransmitOptions
	in        bytestream.Source
	generator interfaces.SymbolWriter
}

var _ Worker = (*TransmitWorker)(nil)

// NewTransmitWorker 搜索播放设备并创建调制器。找不到设备时返回的错误
// 包含 audio.ErrNoDeviceAvailable。
func NewTransmitWorker(
	prober *audio.Prober,
	codec interfaces.Codec,
	in bytestream.Source,
	opts TransmitOptions,
	logger *slog.Logger,
) (*TransmitWorker, error) {
	opts = opts.withDefaults()

	dev, err := prober.FindPlaybackDevice(opts.SymbolRate)
	if err != nil {
		return nil, err
	}

	generator, err := codec.Generator(opts.Hz, dev.Config().SampleRate, opts.SymbolRate, audio.NewSampleWriter(dev))
	if err != nil {
		_ = dev.Release()
		return nil, fmt.Errorf("failed to create symbol generator: %w", err)
	}

	w := &TransmitWorker{
		opts:      opts,
		in:        in,
		generator: generator,
	}
	w.init("transmit", dev, logger)
	return w, nil
}

// Start 开始播放并进入发送循环
func (w *TransmitWorker) Start() {
	w.launch(w.run)
}

func (w *TransmitWorker) run() {
	if err := w.guard.start(); err != nil {
		w.logger.Warn("Transmit not started", "error", err)
		return
	}
	w.logger.Info("Transmit started",
		"hz", w.opts.Hz,
		"symbol_rate", w.opts.SymbolRate)

	w.loop()

	if err := w.generator.Postamble(w.opts.PostambleSymbols); err != nil {
		w.logger.Debug("Postamble not sent", "error", err)
	}
	w.guard.drain(w.logger)
	w.logger.Info("Transmit stopped")
}

// loop 有数据时发送数据，没有数据时发送空闲前导码保持载波。
// 任何I/O失败都结束本次发送，不重试。
func (w *TransmitWorker) loop() {
	buffer := make([]byte, w.opts.ChunkSize)
	for w.guard.isRunning() {
		avail, err := w.in.Available()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Error("Input stream failed", "error", err)
			}
			return
		}

		if avail == 0 {
			if err := w.generator.Preamble(w.opts.PreambleSymbols); err != nil {
				w.logger.Debug("Preamble write failed", "error", err)
				return
			}
			continue
		}

		n, err := w.in.Read(buffer)
		if n > 0 {
			if _, werr := w.generator.Write(buffer[:n]); werr != nil {
				w.logger.Debug("Transmit write failed", "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Error("Input stream failed", "error", err)
			}
			return
		}
	}
}
