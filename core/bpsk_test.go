package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/audio/audiotest"
	"github.com/sdsai/airqso-go/pkg/bytestream"
)

func newTestBpsk(platform *audiotest.FakePlatform, opts ...Option) *Bpsk {
	var (
		mu   sync.Mutex
		gens []*pacedGenerator
	)
	return NewBpsk(newTestProber(platform), pacedCodec(&gens, &mu), bytestream.NewPipe(0), io.Discard, discardLogger(), opts...)
}

func TestBpsk_FullDuplex(t *testing.T) {
	b := newTestBpsk(&audiotest.FakePlatform{BlockReads: true})

	tx, err := b.StartTransmit(700)
	if err != nil {
		t.Fatalf("StartTransmit: %v", err)
	}
	rx, err := b.StartReceive(700)
	if err != nil {
		t.Fatalf("StartReceive: %v", err)
	}
	if !b.IsTransmitting() || !b.IsReceiving() {
		t.Fatal("want both directions busy")
	}

	if _, err := b.StartTransmit(700); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("second StartTransmit = %v, want ErrChannelBusy", err)
	}

	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("tx Stop: %v", err)
	}
	if err := rx.Stop(context.Background()); err != nil {
		t.Fatalf("rx Stop: %v", err)
	}
	if b.IsTransmitting() || b.IsReceiving() {
		t.Fatal("channel still busy after stop")
	}
}

func TestBpsk_Exclusive(t *testing.T) {
	b := newTestBpsk(&audiotest.FakePlatform{BlockReads: true}, WithExclusive(true))

	rx, err := b.StartReceive(700)
	if err != nil {
		t.Fatalf("StartReceive: %v", err)
	}
	if _, err := b.StartTransmit(700); !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("StartTransmit while receiving = %v, want ErrChannelBusy", err)
	}
	if err := rx.Stop(context.Background()); err != nil {
		t.Fatalf("rx Stop: %v", err)
	}

	tx, err := b.StartTransmitRate(1000, 62.5)
	if err != nil {
		t.Fatalf("StartTransmitRate after receive stopped: %v", err)
	}
	if tx.opts.SymbolRate != 62.5 || tx.opts.Hz != 1000 {
		t.Fatalf("options = %+v", tx.opts)
	}
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("tx Stop: %v", err)
	}
}

func TestBpsk_OptionsReachWorker(t *testing.T) {
	b := newTestBpsk(&audiotest.FakePlatform{}, WithChunkSize(8), WithPreamble(4), WithPostamble(6))
	tx, err := b.StartTransmit(700)
	if err != nil {
		t.Fatalf("StartTransmit: %v", err)
	}
	defer tx.Stop(context.Background())

	want := TransmitOptions{Hz: 700, SymbolRate: PSK31SymbolRate, ChunkSize: 8, PreambleSymbols: 4, PostambleSymbols: 6}
	if tx.opts != want {
		t.Fatalf("options = %+v, want %+v", tx.opts, want)
	}
}

func TestBpsk_NoDeviceFreesChannel(t *testing.T) {
	b := newTestBpsk(&audiotest.FakePlatform{
		MinBuffer: func(audio.Direction, int) int { return audio.ErrorBadValue },
	})

	if _, err := b.StartReceive(700); !errors.Is(err, audio.ErrNoDeviceAvailable) {
		t.Fatalf("StartReceive = %v, want ErrNoDeviceAvailable", err)
	}
	if b.IsReceiving() {
		t.Fatal("receive still marked busy after failed start")
	}
}
