package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/audio/audiotest"
	"github.com/sdsai/airqso-go/codec"
	"github.com/sdsai/airqso-go/pkg/bytestream"
	"github.com/sdsai/airqso-go/pkg/interfaces"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProber 只搜索8000 Hz，让符号周期保持较短
func newTestProber(platform audio.Platform) *audio.Prober {
	cfg := audio.DefaultProberConfig()
	cfg.SampleRates = []int{8000}
	return audio.NewProber(platform, cfg, discardLogger())
}

// syncBuffer 可供一个写者和一个读者并发使用的 bytes.Buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// pacedGenerator 只记录前导码和结束码调用而不产生样本，
// 每次前导码短暂休眠，模拟真实设备的写入节奏
type pacedGenerator struct {
	mu         sync.Mutex
	sink       io.Writer
	preambles  []int
	postambles []int
}

func (g *pacedGenerator) Write(p []byte) (int, error) { return g.sink.Write(p) }

func (g *pacedGenerator) Preamble(n int) error {
	g.mu.Lock()
	g.preambles = append(g.preambles, n)
	g.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil
}

func (g *pacedGenerator) Postamble(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.postambles = append(g.postambles, n)
	return nil
}

func (g *pacedGenerator) counts() (pre []int, post []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.preambles), slices.Clone(g.postambles)
}

// pacedCodec 返回的编解码器把创建的发生器记录到 *gens
func pacedCodec(gens *[]*pacedGenerator, mu *sync.Mutex) interfaces.Codec {
	return interfaces.Codec{
		Name: "paced",
		Generator: func(_ int, _ int, _ float64, sink io.Writer) (interfaces.SymbolWriter, error) {
			g := &pacedGenerator{sink: sink}
			mu.Lock()
			*gens = append(*gens, g)
			mu.Unlock()
			return g, nil
		},
		Detector: codec.Raw.Detector,
	}
}

func waitDone(t *testing.T, w Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTransmitWorker_SendsPayloadThenPostamble(t *testing.T) {
	platform := &audiotest.FakePlatform{}
	in := bytestream.NewPipe(16)
	in.Write([]byte("HI"))
	in.CloseWrite()

	w, err := NewTransmitWorker(newTestProber(platform), codec.Raw, in, TransmitOptions{
		Hz:         700,
		SymbolRate: 31.25,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	w.Start()
	waitDone(t, w)

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	dev := platform.LastDevice()
	// 8000 / 31.25 = 每符号256个样本，结束码10个符号
	want := []string{"start", "write:1", "write:2560", "drain", "release"}
	if got := dev.Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if got := dev.Written()[0]; got != 0x4849 {
		t.Fatalf("first sample = %#x, want 0x4849", got)
	}
	if got := dev.Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestTransmitWorker_IdlePreambleUntilStop(t *testing.T) {
	var (
		mu   sync.Mutex
		gens []*pacedGenerator
	)
	platform := &audiotest.FakePlatform{}
	in := bytestream.NewPipe(16)

	w, err := NewTransmitWorker(newTestProber(platform), pacedCodec(&gens, &mu), in, TransmitOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	gen := gens[0]
	w.Start()

	waitFor(t, "preambles", func() bool {
		pre, _ := gen.counts()
		return len(pre) >= 3
	})
	select {
	case <-w.Done():
		t.Fatal("worker exited without stop")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	pre, post := gen.counts()
	for i, n := range pre {
		if n != 10 {
			t.Fatalf("preamble[%d] = %d, want 10", i, n)
		}
	}
	if !slices.Equal(post, []int{10}) {
		t.Fatalf("postambles = %v, want [10]", post)
	}
	if got := platform.LastDevice().Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestTransmitWorker_DataAfterIdle(t *testing.T) {
	var (
		mu   sync.Mutex
		gens []*pacedGenerator
	)
	platform := &audiotest.FakePlatform{}
	in := bytestream.NewPipe(16)

	w, err := NewTransmitWorker(newTestProber(platform), pacedCodec(&gens, &mu), in, TransmitOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	w.Start()

	waitFor(t, "idle preamble", func() bool {
		pre, _ := gens[0].counts()
		return len(pre) > 0
	})
	in.Write([]byte("CQ"))
	in.CloseWrite()
	waitDone(t, w)

	dev := platform.LastDevice()
	if got := dev.Written(); !slices.Equal(got, []int16{0x4351}) {
		t.Fatalf("written = %#v, want [0x4351]", got)
	}
}

func TestReceiveWorker_ScriptedReads(t *testing.T) {
	platform := &audiotest.FakePlatform{
		Script: []audiotest.ReadStep{
			{Code: 0},
			{Code: 0},
			{Code: 0},
			{Samples: []int16{0x4845, 0x4c4c, 0x4f20, 0x5752, 0x4c44}},
			{Code: audio.ErrorEnd},
		},
	}
	out := &syncBuffer{}

	w, err := NewReceiveWorker(newTestProber(platform), codec.Raw, out, ReceiveOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewReceiveWorker: %v", err)
	}
	w.Start()
	waitDone(t, w)

	if got, want := out.String(), ReceiveStarted+"HELLO WRLD"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	dev := platform.LastDevice()
	if want := []string{"start", "stop", "release"}; !slices.Equal(dev.Calls(), want) {
		t.Fatalf("calls = %v, want %v", dev.Calls(), want)
	}
}

func TestReceiveWorker_StopDuringBlockingRead(t *testing.T) {
	platform := &audiotest.FakePlatform{BlockReads: true}
	out := &syncBuffer{}

	w, err := NewReceiveWorker(newTestProber(platform), codec.Raw, out, ReceiveOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewReceiveWorker: %v", err)
	}
	w.Start()
	waitFor(t, "receive start", func() bool {
		return strings.HasPrefix(out.String(), ReceiveStarted)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stopped := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { stopped <- w.Stop(ctx) }()
	}
	for i := 0; i < 2; i++ {
		if err := <-stopped; err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	if got := platform.LastDevice().Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

// wedgedDetector 不读设备，一直阻塞到 unblock 关闭
type wedgedDetector struct{ unblock chan struct{} }

func (d *wedgedDetector) Read([]byte) (int, error) {
	<-d.unblock
	return 0, io.EOF
}

func TestReceiveWorker_StopDeadline(t *testing.T) {
	platform := &audiotest.FakePlatform{}
	det := &wedgedDetector{unblock: make(chan struct{})}
	wedged := interfaces.Codec{
		Name:      "wedged",
		Generator: codec.Raw.Generator,
		Detector: func(int, int, float64, io.Reader) (interfaces.SymbolReader, error) {
			return det, nil
		},
	}

	w, err := NewReceiveWorker(newTestProber(platform), wedged, io.Discard, ReceiveOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewReceiveWorker: %v", err)
	}
	w.Start()
	waitFor(t, "device start", func() bool {
		return platform.LastDevice().State() == audio.StateActive
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = w.Stop(ctx)
	if !errors.Is(err, ErrJoinInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want ErrJoinInterrupted wrapping DeadlineExceeded", err)
	}

	// 放弃等待的工作者解除阻塞后仍会自行清理
	close(det.unblock)
	waitDone(t, w)
	if got := platform.LastDevice().Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestWorker_StopBeforeStart(t *testing.T) {
	platform := &audiotest.FakePlatform{}
	w, err := NewReceiveWorker(newTestProber(platform), codec.Raw, io.Discard, ReceiveOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewReceiveWorker: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	w.Start()
	waitDone(t, w)

	dev := platform.LastDevice()
	if want := []string{"release"}; !slices.Equal(dev.Calls(), want) {
		t.Fatalf("calls = %v, want %v", dev.Calls(), want)
	}
}

func TestWorker_NoDeviceAvailable(t *testing.T) {
	platform := &audiotest.FakePlatform{
		MinBuffer: func(audio.Direction, int) int { return audio.ErrorBadValue },
	}
	prober := newTestProber(platform)

	if _, err := NewTransmitWorker(prober, codec.Raw, bytestream.NewPipe(0), TransmitOptions{Hz: 700}, discardLogger()); !errors.Is(err, audio.ErrNoDeviceAvailable) {
		t.Fatalf("NewTransmitWorker error = %v, want ErrNoDeviceAvailable", err)
	}
	if _, err := NewReceiveWorker(prober, codec.Raw, io.Discard, ReceiveOptions{Hz: 700}, discardLogger()); !errors.Is(err, audio.ErrNoDeviceAvailable) {
		t.Fatalf("NewReceiveWorker error = %v, want ErrNoDeviceAvailable", err)
	}
}

func TestWorker_CodecFailureReleasesDevice(t *testing.T) {
	platform := &audiotest.FakePlatform{}
	broken := interfaces.Codec{
		Name: "broken",
		Generator: func(int, int, float64, io.Writer) (interfaces.SymbolWriter, error) {
			return nil, errors.New("no carrier")
		},
	}
	if _, err := NewTransmitWorker(newTestProber(platform), broken, bytestream.NewPipe(0), TransmitOptions{Hz: 700}, discardLogger()); err == nil {
		t.Fatal("NewTransmitWorker succeeded with failing codec")
	}
	if got := platform.LastDevice().Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestTransmitWorker_PostambleSurvivesNormalExit(t *testing.T) {
	platform := &audiotest.FakePlatform{Buffered: true}
	in := bytestream.NewPipe(16)
	in.Write([]byte("HI"))
	in.CloseWrite()

	w, err := NewTransmitWorker(newTestProber(platform), codec.Raw, in, TransmitOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	w.Start()
	waitDone(t, w)

	dev := platform.LastDevice()
	if got := dev.Discarded(); len(got) != 0 {
		t.Fatalf("discarded %d samples, want 0", len(got))
	}
	played := dev.Written()
	if len(played) != 1+2560 {
		t.Fatalf("played %d samples, want %d", len(played), 1+2560)
	}
	if played[0] != 0x4849 {
		t.Fatalf("first sample = %#x, want 0x4849", played[0])
	}
	if slices.Contains(dev.Calls(), "stop") {
		t.Fatalf("calls = %v, want drain instead of stop", dev.Calls())
	}
	if got := dev.Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestTransmitWorker_StopDiscardsQueued(t *testing.T) {
	var (
		mu   sync.Mutex
		gens []*pacedGenerator
	)
	platform := &audiotest.FakePlatform{Buffered: true}
	in := bytestream.NewPipe(16)
	in.Write([]byte("CQ"))

	w, err := NewTransmitWorker(newTestProber(platform), pacedCodec(&gens, &mu), in, TransmitOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	w.Start()
	waitFor(t, "idle after data", func() bool {
		pre, _ := gens[0].counts()
		return len(pre) > 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	dev := platform.LastDevice()
	if slices.Contains(dev.Calls(), "drain") {
		t.Fatalf("calls = %v, want stop without drain", dev.Calls())
	}
	if got := dev.Discarded(); !slices.Equal(got, []int16{0x4351}) {
		t.Fatalf("discarded = %#v, want [0x4351]", got)
	}
	if got := dev.Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

// clearingSource 报告有数据后立即清空管道，
// 相当于清空命令恰好落在 Available 与 Read 之间
type clearingSource struct {
	*bytestream.Pipe
	once sync.Once
}

func (s *clearingSource) Available() (int, error) {
	n, err := s.Pipe.Available()
	if n > 0 {
		s.once.Do(s.Pipe.Reset)
	}
	return n, err
}

func TestTransmitWorker_ClearBetweenAvailableAndRead(t *testing.T) {
	var (
		mu   sync.Mutex
		gens []*pacedGenerator
	)
	platform := &audiotest.FakePlatform{}
	pipe := bytestream.NewPipe(16)
	pipe.Write([]byte("CQ"))
	in := &clearingSource{Pipe: pipe}

	w, err := NewTransmitWorker(newTestProber(platform), pacedCodec(&gens, &mu), in, TransmitOptions{Hz: 700}, discardLogger())
	if err != nil {
		t.Fatalf("NewTransmitWorker: %v", err)
	}
	w.Start()

	// 读取落空后回到空闲前导码
	waitFor(t, "idle preamble", func() bool {
		pre, _ := gens[0].counts()
		return len(pre) > 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	dev := platform.LastDevice()
	if got := dev.Written(); len(got) != 0 {
		t.Fatalf("written = %#v, want nothing", got)
	}
	if got := dev.Releases(); got != 1 {
		t.Fatalf("releases = %d, want 1", got)
	}
}

func TestTransmitWorker_DeviceErrorEndsSession(t *testing.T) {
	for _, code := range []int{audio.ErrorInvalidOperation, audio.ErrorBadValue} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			platform := &audiotest.FakePlatform{WriteScript: []int{code}}
			in := bytestream.NewPipe(16)
			in.Write([]byte("HI"))

			w, err := NewTransmitWorker(newTestProber(platform), codec.Raw, in, TransmitOptions{Hz: 700}, discardLogger())
			if err != nil {
				t.Fatalf("NewTransmitWorker: %v", err)
			}
			w.Start()
			// 输入未关闭，只有写入失败才会结束
			waitDone(t, w)

			dev := platform.LastDevice()
			want := []string{"start", fmt.Sprintf("write-fail:%d", code), "write:2560", "drain", "release"}
			if got := dev.Calls(); !slices.Equal(got, want) {
				t.Fatalf("calls = %v, want %v", got, want)
			}
			if err := w.Stop(context.Background()); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			if got := dev.Releases(); got != 1 {
				t.Fatalf("releases = %d, want 1", got)
			}
		})
	}
}

func TestReceiveWorker_DeviceErrorEndsSession(t *testing.T) {
	for _, code := range []int{audio.ErrorInvalidOperation, audio.ErrorBadValue} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			platform := &audiotest.FakePlatform{
				BlockReads: true,
				Script: []audiotest.ReadStep{
					{Samples: []int16{0x4849}},
					{Code: code},
				},
			}
			out := &syncBuffer{}

			w, err := NewReceiveWorker(newTestProber(platform), codec.Raw, out, ReceiveOptions{Hz: 700}, discardLogger())
			if err != nil {
				t.Fatalf("NewReceiveWorker: %v", err)
			}
			w.Start()
			waitDone(t, w)

			if got, want := out.String(), ReceiveStarted+"HI"; got != want {
				t.Fatalf("output = %q, want %q", got, want)
			}
			if err := w.Stop(context.Background()); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			dev := platform.LastDevice()
			if want := []string{"start", "stop", "release"}; !slices.Equal(dev.Calls(), want) {
				t.Fatalf("calls = %v, want %v", dev.Calls(), want)
			}
			if got := dev.Releases(); got != 1 {
				t.Fatalf("releases = %d, want 1", got)
			}
		})
	}
}
