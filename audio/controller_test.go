package audio

import "testing"

func TestController_FullDuplex(t *testing.T) {
	c := NewController(false)

	if !c.StartTransmitting() {
		t.Fatal("StartTransmitting() = false, want true")
	}
	if !c.StartReceiving() {
		t.Fatal("StartReceiving() = false while transmitting in full duplex, want true")
	}
	if c.StartTransmitting() {
		t.Fatal("second StartTransmitting() = true, want false")
	}
	if !c.IsTransmitting() || !c.IsReceiving() {
		t.Fatalf("IsTransmitting=%v IsReceiving=%v, want both true", c.IsTransmitting(), c.IsReceiving())
	}

	c.StopTransmitting()
	c.StopReceiving()
	if c.IsTransmitting() || c.IsReceiving() {
		t.Fatal("controller still active after stop")
	}
}

func TestController_Exclusive(t *testing.T) {
	c := NewController(true)

	if !c.StartReceiving() {
		t.Fatal("StartReceiving() = false, want true")
	}
	if c.StartTransmitting() {
		t.Fatal("StartTransmitting() = true while receiving in half duplex, want false")
	}

	c.StopReceiving()
	if !c.StartTransmitting() {
		t.Fatal("StartTransmitting() = false after receive stopped, want true")
	}
	if c.StartReceiving() {
		t.Fatal("StartReceiving() = true while transmitting in half duplex, want false")
	}
}
