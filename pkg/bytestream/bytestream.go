// Package bytestream 提供用户输入与发送工作者之间的字节流
package bytestream

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Source 可以不阻塞地查询已就绪字节数的字节流
//
// Available 在暂无数据时返回 (0, nil)，流关闭且读完后返回 io.EOF。
// Read 同样不阻塞：没有数据时返回 (0, nil)，调用方应回到 Available 轮询。
type Source interface {
	io.Reader
	Available() (int, error)
}

// Pipe 由 Write 写入的内存字节流，相当于把用户输入推给发送端的文本框
//
// CloseWrite 之后仍可读完剩余数据，然后返回 io.EOF。
type Pipe struct {
	mu         sync.Mutex
	buf        []byte
	closeWrite bool
	closeErr   error
}

var (
	_ Source    = (*Pipe)(nil)
	_ io.Writer = (*Pipe)(nil)
)

// NewPipe 创建初始容量为 n 的 Pipe
func NewPipe(n int) *Pipe {
	return &Pipe{buf: make([]byte, 0, n)}
}

func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr != nil {
		return 0, fmt.Errorf("bytestream: write to closed pipe: %w", p.closeErr)
	}
	if p.closeWrite {
		return 0, fmt.Errorf("bytestream: write to closed pipe: %w", io.ErrClosedPipe)
	}
	p.buf = append(p.buf, b...)
	return len(b), nil
}

func (p *Pipe) Available() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr != nil {
		return 0, p.closeErr
	}
	if len(p.buf) == 0 && p.closeWrite {
		return 0, io.EOF
	}
	return len(p.buf), nil
}

// Read 取出已缓冲的数据，缓冲区为空且未关闭时立即返回 (0, nil)。
// Available 与 Read 之间发生的 Reset 因此不会让发送端卡住。
func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr != nil {
		return 0, p.closeErr
	}
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}
	if p.closeWrite {
		return 0, io.EOF
	}
	return 0, nil
}

// Reset 丢弃所有未读数据
func (p *Pipe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
}

// CloseWrite 标记输入结束，已缓冲的数据仍可读取
func (p *Pipe) CloseWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeWrite = true
	return nil
}

// CloseWithError 关闭两端，之后的读取都返回 err
func (p *Pipe) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr == nil {
		p.closeErr = err
	}
	p.closeWrite = true
	return nil
}

// NewReaderSource 在单独的goroutine中把普通 io.Reader（例如 os.Stdin）
// 复制进 Pipe。r 读到 EOF 时关闭写端，其他读取错误则以该错误关闭。
func NewReaderSource(r io.Reader) Source {
	p := NewPipe(4096)
	go func() {
		_, err := io.Copy(p, r)
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			p.CloseWithError(err)
			return
		}
		p.CloseWrite()
	}()
	return p
}
