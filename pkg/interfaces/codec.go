// pkg/interfaces/codec.go
package interfaces

import "io"

// SymbolWriter 外部调制器的字节输出端，写入的字节会被调制成样本写入底层流
type SymbolWriter interface {
	io.Writer
	// Preamble 发送 n 个空闲符号，让接收方保持同步
	Preamble(n int) error
	// Postamble 发送 n 个结束符号，标记发送结束
	Postamble(n int) error
}

// SymbolReader 外部解调器的字节输入端
//
// Read 返回解码后的字节；(0, nil) 表示暂时没有数据，io.EOF 表示流结束。
type SymbolReader interface {
	io.Reader
}

// GeneratorFactory 基于底层样本字节流构造调制器
type GeneratorFactory func(hz, sampleRate int, symbolRate float64, sink io.Writer) (SymbolWriter, error)

// DetectorFactory 基于底层样本字节流构造解调器
type DetectorFactory func(hz, sampleRate int, symbolRate float64, source io.Reader) (SymbolReader, error)

// Codec 一对调制/解调工厂
type Codec struct {
	Name      string
	Generator GeneratorFactory
	Detector  DetectorFactory
}
