package audio_test

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/audio/audiotest"
)

func activeDevice(t *testing.T, script ...audiotest.ReadStep) *audiotest.FakeDevice {
	t.Helper()
	dev := audiotest.NewFakeDevice(audio.DeviceConfig{SampleRate: 8000}, 1024, script...)
	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return dev
}

func TestSampleWriter_PacksBigEndian(t *testing.T) {
	dev := activeDevice(t)
	w := audio.NewSampleWriter(dev)

	n, err := w.Write([]byte{0x48, 0x49, 0xff, 0xfe, 0x80, 0x00})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 6 {
		t.Fatalf("Write returned %d, want 6", n)
	}

	want := []int16{0x4849, -2, -32768}
	got := dev.Written()
	if len(got) != len(want) {
		t.Fatalf("written %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %#04x, want %#04x", i, got[i], want[i])
		}
	}
	// 每次 Write 只调用一次设备
	if calls := dev.Calls(); calls[len(calls)-1] != "write:3" {
		t.Fatalf("calls = %v, want a single write:3", calls)
	}
}

func TestSampleWriter_WriteByteLegacy(t *testing.T) {
	dev := activeDevice(t)
	w := audio.NewSampleWriter(dev)

	if err := w.WriteByte(0xab); err != nil {
		t.Fatalf("WriteByte error: %v", err)
	}
	got := dev.Written()
	if len(got) != 1 || got[0] != 0x00ab {
		t.Fatalf("written %v, want [0x00ab]", got)
	}
}

func TestSampleWriter_StoppedDevice(t *testing.T) {
	dev := activeDevice(t)
	_ = dev.Stop()
	w := audio.NewSampleWriter(dev)

	_, err := w.Write([]byte{1, 2})
	if !errors.Is(err, audio.ErrDeviceOperation) {
		t.Fatalf("Write error = %v, want ErrDeviceOperation", err)
	}
	if err := w.WriteByte(1); !errors.Is(err, audio.ErrDeviceOperation) {
		t.Fatalf("WriteByte error = %v, want ErrDeviceOperation", err)
	}
}

func TestSampleWriter_ZeroWriteIsStopped(t *testing.T) {
	dev := activeDevice(t)
	dev.SetWriteScript(0, 0)
	w := audio.NewSampleWriter(dev)

	if _, err := w.Write([]byte{1, 2}); !errors.Is(err, audio.ErrDeviceOperation) {
		t.Fatalf("Write error = %v, want ErrDeviceOperation", err)
	}
	if err := w.WriteByte(1); !errors.Is(err, audio.ErrDeviceOperation) {
		t.Fatalf("WriteByte error = %v, want ErrDeviceOperation", err)
	}
}

func TestSampleCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 2, 10, 100, 4096} {
		data := make([]byte, n)
		rng.Read(data)

		tx := activeDevice(t)
		if _, err := audio.NewSampleWriter(tx).Write(data); err != nil {
			t.Fatalf("n=%d: Write error: %v", n, err)
		}

		rx := activeDevice(t, audiotest.ReadStep{Samples: tx.Written()})
		got := make([]byte, n)
		m, err := audio.NewSampleReader(rx).Read(got)
		if err != nil {
			t.Fatalf("n=%d: Read error: %v", n, err)
		}
		if m != n || !bytes.Equal(got, data) {
			t.Fatalf("n=%d: round trip mismatch (read %d bytes)", n, m)
		}
	}
}

func TestSampleReader_ReturnCodes(t *testing.T) {
	rx := activeDevice(t,
		audiotest.ReadStep{Samples: []int16{}},
		audiotest.ReadStep{Samples: []int16{0x0102, 0x0304}},
		audiotest.ReadStep{Code: audio.ErrorBadValue},
		audiotest.ReadStep{Code: audio.ErrorInvalidOperation},
		audiotest.ReadStep{Code: audio.ErrorEnd},
	)
	r := audio.NewSampleReader(rx)
	buf := make([]byte, 8)

	n, err := r.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("zero-sample read = (%d, %v), want (0, nil)", n, err)
	}

	n, err = r.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("read = (%d, %v), want (4, nil)", n, err)
	}
	if !bytes.Equal(buf[:n], []byte{1, 2, 3, 4}) {
		t.Fatalf("read %v, want [1 2 3 4]", buf[:n])
	}

	var devErr *audio.DeviceError
	_, err = r.Read(buf)
	if !errors.As(err, &devErr) || devErr.Code != audio.ErrorBadValue {
		t.Fatalf("bad value read error = %v", err)
	}
	_, err = r.Read(buf)
	if !errors.As(err, &devErr) || devErr.Code != audio.ErrorInvalidOperation {
		t.Fatalf("invalid operation read error = %v", err)
	}
	_, err = r.Read(buf)
	if err != io.EOF {
		t.Fatalf("end read error = %v, want io.EOF", err)
	}
}

func TestSampleReader_ReadByte(t *testing.T) {
	rx := activeDevice(t,
		audiotest.ReadStep{Samples: []int16{}},
		audiotest.ReadStep{Samples: []int16{}},
		audiotest.ReadStep{Samples: []int16{0x1234}},
		audiotest.ReadStep{Code: audio.ErrorBadValue},
		audiotest.ReadStep{Code: audio.ErrorEnd},
	)
	r := audio.NewSampleReader(rx)

	b, err := r.ReadByte()
	if err != nil || b != 0x34 {
		t.Fatalf("ReadByte = (%#x, %v), want (0x34, nil)", b, err)
	}
	if _, err := r.ReadByte(); !errors.Is(err, audio.ErrDeviceOperation) {
		t.Fatalf("ReadByte error = %v, want ErrDeviceOperation", err)
	}
	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("ReadByte error = %v, want io.EOF", err)
	}
}

func TestSampleReader_ReadByteSpinLimit(t *testing.T) {
	steps := make([]audiotest.ReadStep, 10)
	for i := range steps {
		steps[i] = audiotest.ReadStep{Samples: []int16{}}
	}
	r := audio.NewSampleReader(activeDevice(t, steps...))
	r.MaxSpins = 3

	if _, err := r.ReadByte(); err != io.ErrNoProgress {
		t.Fatalf("ReadByte error = %v, want io.ErrNoProgress", err)
	}
}
