package core

import "errors"

var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnsupportedBackend  = errors.New("unsupported audio backend")
	ErrChannelBusy         = errors.New("audio channel busy")
	ErrJoinInterrupted     = errors.New("failed to join worker")
	ErrNotRunning          = errors.New("worker not running")
)
