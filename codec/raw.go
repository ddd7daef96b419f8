package codec

import (
	"errors"
	"io"

	"github.com/sdsai/airqso-go/pkg/interfaces"
)

// Raw 把负载字节当作大端PCM，前导码和结束码是持续指定符号周期数的静音。
// 不做调制，用于文件回环和测试
var Raw = interfaces.Codec{
	Name:      "raw",
	Generator: NewRawGenerator,
	Detector:  NewRawDetector,
}

const rawReadSize = 512

func samplesPerSymbol(sampleRate int, symbolRate float64) (int, error) {
	if sampleRate <= 0 || symbolRate <= 0 {
		return 0, errors.New("codec: sample rate and symbol rate must be positive")
	}
	return max(int(float64(sampleRate)/symbolRate), 1), nil
}

type rawGenerator struct {
	sink   io.Writer
	sps    int
	carry  []byte
	silent []byte
}

func NewRawGenerator(_ int, sampleRate int, symbolRate float64, sink io.Writer) (interfaces.SymbolWriter, error) {
	sps, err := samplesPerSymbol(sampleRate, symbolRate)
	if err != nil {
		return nil, err
	}
	return &rawGenerator{sink: sink, sps: sps}, nil
}

// Write 只发送完整样本，奇数的尾字节留到下次调用
func (g *rawGenerator) Write(p []byte) (int, error) {
	buf := append(g.carry, p...)
	even := len(buf) &^ 1
	if even > 0 {
		if _, err := g.sink.Write(buf[:even]); err != nil {
			return 0, err
		}
	}
	g.carry = append(g.carry[:0:0], buf[even:]...)
	return len(p), nil
}

func (g *rawGenerator) silence(symbols int) error {
	n := symbols * g.sps * 2
	if cap(g.silent) < n {
		g.silent = make([]byte, n)
	}
	_, err := g.sink.Write(g.silent[:n])
	return err
}

func (g *rawGenerator) Preamble(n int) error { return g.silence(n) }

func (g *rawGenerator) Postamble(n int) error { return g.silence(n) }

type rawDetector struct {
	source  io.Reader
	buf     []byte
	pending []byte
}

func NewRawDetector(_ int, sampleRate int, symbolRate float64, source io.Reader) (interfaces.SymbolReader, error) {
	if _, err := samplesPerSymbol(sampleRate, symbolRate); err != nil {
		return nil, err
	}
	return &rawDetector{source: source, buf: make([]byte, rawReadSize)}, nil
}

// Read 取出缓冲的字节，空了再从源读取。源暂时没有数据时返回 (0, nil)
func (d *rawDetector) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		n, err := d.source.Read(d.buf)
		if err != nil {
			return 0, err
		}
		d.pending = d.buf[:n]
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}
