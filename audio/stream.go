package audio

import (
	"io"
	"runtime"
)

// PackSamples 将大端字节对打包为16位有符号样本，奇数个字节时丢弃最后一个
func PackSamples(dst []int16, b []byte) int {
	n := min(len(b)/2, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = int16(uint16(b[i*2])<<8 | uint16(b[i*2+1]))
	}
	return n
}

// UnpackSamples 将样本拆成大端字节对，高字节在前
func UnpackSamples(dst []byte, s []int16) int {
	n := min(len(s), len(dst)/2)
	for i := 0; i < n; i++ {
		dst[i*2] = byte(uint16(s[i]) >> 8)
		dst[i*2+1] = byte(uint16(s[i]))
	}
	return n * 2
}

// SampleWriter 把设备的样本写入原语包装成字节流
type SampleWriter struct {
	dev Device
	buf []int16
}

var (
	_ io.Writer     = (*SampleWriter)(nil)
	_ io.ByteWriter = (*SampleWriter)(nil)
)

func NewSampleWriter(dev Device) *SampleWriter {
	return &SampleWriter{dev: dev}
}

// Write 每两个字节组成一个样本后一次性写入设备
func (w *SampleWriter) Write(b []byte) (int, error) {
	n := len(b) / 2
	if cap(w.buf) < n {
		w.buf = make([]int16, n)
	}
	s := w.buf[:n]
	PackSamples(s, b)

	for written := 0; written < n; {
		rc := w.dev.Write(s[written:])
		if rc < 0 {
			return written * 2, &DeviceError{Op: "write", Code: rc}
		}
		if rc == 0 {
			// 设备已停止
			return written * 2, &DeviceError{Op: "write", Code: ErrorInvalidOperation}
		}
		written += rc
	}
	return len(b), nil
}

// WriteByte 单字节写入：该字节作为样本低位，高位为0
//
// 这是与已部署节点兼容的旧格式，与成对写入不对称。
func (w *SampleWriter) WriteByte(c byte) error {
	s := [1]int16{int16(c)}
	rc := w.dev.Write(s[:])
	if rc < 0 {
		return &DeviceError{Op: "write", Code: rc}
	}
	if rc == 0 {
		// 与 Write 一致：没有写入任何样本视为设备已停止
		return &DeviceError{Op: "write", Code: ErrorInvalidOperation}
	}
	return nil
}

// SampleReader 把设备的样本读取原语包装成字节流
//
// Read 在设备暂时没有数据时返回 (0, nil)，调用方应重试；
// 负返回码表示流结束，返回 io.EOF。
type SampleReader struct {
	dev Device
	buf []int16

	// MaxSpins 限制 ReadByte 的空读重试次数，0 表示不限制
	MaxSpins int
}

var (
	_ io.Reader     = (*SampleReader)(nil)
	_ io.ByteReader = (*SampleReader)(nil)
)

func NewSampleReader(dev Device) *SampleReader {
	return &SampleReader{dev: dev}
}

func translateReadCode(rc int) error {
	switch rc {
	case ErrorInvalidOperation, ErrorBadValue:
		return &DeviceError{Op: "read", Code: rc}
	}
	if rc < 0 {
		return io.EOF
	}
	return nil
}

// Read 读取 len(b)/2 个样本并按大端展开，返回的字节数总是样本数的两倍
func (r *SampleReader) Read(b []byte) (int, error) {
	n := len(b) / 2
	if cap(r.buf) < n {
		r.buf = make([]int16, n)
	}
	s := r.buf[:n]

	rc := r.dev.Read(s)
	if err := translateReadCode(rc); err != nil {
		return 0, err
	}
	return UnpackSamples(b, s[:rc]), nil
}

// ReadByte 读取单个样本，设备没有数据时让出调度后重试
//
// 这是忙等而不是真正的阻塞读取，延迟会比 Read 差。
func (r *SampleReader) ReadByte() (byte, error) {
	var s [1]int16
	for spins := 0; ; spins++ {
		rc := r.dev.Read(s[:])
		if err := translateReadCode(rc); err != nil {
			return 0, err
		}
		if rc > 0 {
			return byte(uint16(s[0])), nil
		}
		if r.MaxSpins > 0 && spins >= r.MaxSpins {
			return 0, io.ErrNoProgress
		}
		runtime.Gosched()
	}
}
