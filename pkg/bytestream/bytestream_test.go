package bytestream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestPipe_AvailableAndEOF(t *testing.T) {
	p := NewPipe(8)

	if n, err := p.Available(); n != 0 || err != nil {
		t.Fatalf("Available on empty pipe = (%d, %v), want (0, nil)", n, err)
	}

	if _, err := p.Write([]byte("HI")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n, err := p.Available(); n != 2 || err != nil {
		t.Fatalf("Available = (%d, %v), want (2, nil)", n, err)
	}
	p.CloseWrite()

	buf := make([]byte, 100)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "HI" {
		t.Fatalf("Read = (%q, %v), want (\"HI\", nil)", buf[:n], err)
	}
	if _, err := p.Available(); err != io.EOF {
		t.Fatalf("Available after drain error = %v, want io.EOF", err)
	}
	if _, err := p.Read(buf); err != io.EOF {
		t.Fatalf("Read after drain error = %v, want io.EOF", err)
	}
	if _, err := p.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Write after close error = %v, want io.ErrClosedPipe", err)
	}
	// 重复关闭不应 panic
	p.CloseWrite()
}

func TestPipe_ReadEmptyDoesNotBlock(t *testing.T) {
	p := NewPipe(8)
	p.Write([]byte("lost"))

	// Available 之后被清空，Read 必须立即返回
	if n, _ := p.Available(); n != 4 {
		t.Fatalf("Available = %d, want 4", n)
	}
	p.Reset()

	done := make(chan struct{})
	var n int
	var err error
	go func() {
		defer close(done)
		n, err = p.Read(make([]byte, 8))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read blocked on an empty pipe")
	}
	if n != 0 || err != nil {
		t.Fatalf("Read = (%d, %v), want (0, nil)", n, err)
	}

	p.Write([]byte("ok"))
	buf := make([]byte, 8)
	if n, err := p.Read(buf); err != nil || string(buf[:n]) != "ok" {
		t.Fatalf("Read = (%q, %v), want (\"ok\", nil)", buf[:n], err)
	}
}

func TestPipe_CloseWithError(t *testing.T) {
	p := NewPipe(8)
	p.Write([]byte("lost"))
	boom := errors.New("boom")
	p.CloseWithError(boom)

	if _, err := p.Read(make([]byte, 8)); err != boom {
		t.Fatalf("Read error = %v, want boom", err)
	}
	if _, err := p.Available(); err != boom {
		t.Fatalf("Available error = %v, want boom", err)
	}
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(strings.NewReader("hello"))

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadAll = %q, want %q", data, "hello")
	}
	if _, err := src.Available(); err != io.EOF {
		t.Fatalf("Available error = %v, want io.EOF", err)
	}
}
