package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/pkg/interfaces"
)

// ReceiveStarted 接收开始时写给输出端的提示
const ReceiveStarted = "[Receive started]\n"

// ReceiveOptions 接收参数
type ReceiveOptions struct {
	Hz         int
	SymbolRate float64
}

// ReceiveWorker 持有录音设备与解调器，把解码出的字节写到输出端
type ReceiveWorker struct {
	workerCore
	opts     ReceiveOptions
	out      io.Writer
	detector interfaces.SymbolReader
}

var _ Worker = (*ReceiveWorker)(nil)

// NewReceiveWorker 搜索录音设备并创建解调器。找不到设备时返回的错误
// 包含 audio.ErrNoDeviceAvailable。
func NewReceiveWorker(
	prober *audio.Prober,
	codec interfaces.Codec,
	out io.Writer,
	opts ReceiveOptions,
	logger *slog.Logger,
) (*ReceiveWorker, error) {
	if opts.SymbolRate <= 0 {
		opts.SymbolRate = PSK31SymbolRate
	}

	dev, err := prober.FindCaptureDevice(opts.SymbolRate)
	if err != nil {
		return nil, err
	}

	detector, err := codec.Detector(opts.Hz, dev.Config().SampleRate, opts.SymbolRate, audio.NewSampleReader(dev))
	if err != nil {
		_ = dev.Release()
		return nil, fmt.Errorf("failed to create symbol detector: %w", err)
	}

	w := &ReceiveWorker{
		opts:     opts,
		out:      out,
		detector: detector,
	}
	w.init("receive", dev, logger)
	return w, nil
}

// Start 开始录音并进入接收循环
func (w *ReceiveWorker) Start() {
	w.launch(w.run)
}

func (w *ReceiveWorker) run() {
	if err := w.guard.start(); err != nil {
		w.logger.Warn("Receive not started", "error", err)
		return
	}
	if _, err := io.WriteString(w.out, ReceiveStarted); err != nil {
		w.logger.Info("Output stream failed", "error", err)
		return
	}
	w.logger.Info("Receive started",
		"hz", w.opts.Hz,
		"symbol_rate", w.opts.SymbolRate)

	w.loop()
	w.logger.Info("Receive stopped")
}

// loop 每次读取一个解码单元：正数写给下游，0 表示暂时没有数据，
// io.EOF 正常结束。失败只结束本次接收。
func (w *ReceiveWorker) loop() {
	b := make([]byte, 1)
	for w.guard.isRunning() {
		n, err := w.detector.Read(b)
		if n > 0 {
			if _, werr := w.out.Write(b[:n]); werr != nil {
				w.logger.Info("Output stream failed", "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Info("Receive read failed", "error", err)
			}
			return
		}
	}
}
