package core

import (
	"fmt"
	"log/slog"

	"github.com/sdsai/airqso-go/audio"
)

// NewPlatform 根据配置创建音频后端
func NewPlatform(cfg Config, logger *slog.Logger) (audio.Platform, error) {
	switch cfg.Audio.Backend {
	case "", "portaudio":
		return audio.NewPortAudioPlatform(logger), nil
	case "malgo":
		return audio.NewMalgoPlatform(logger), nil
	case "wav":
		p := audio.NewWavPlatform(cfg.Audio.Wav.Input, cfg.Audio.Wav.Output, logger)
		p.Realtime = cfg.Audio.Wav.Realtime
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Audio.Backend)
	}
}

// NewProberConfig 用配置覆盖默认搜索空间，未配置的列表保持默认
func NewProberConfig(cfg Config) (audio.ProberConfig, error) {
	pc := audio.DefaultProberConfig()
	if len(cfg.Audio.SampleRates) > 0 {
		pc.SampleRates = cfg.Audio.SampleRates
	}
	if len(cfg.Audio.CaptureSources) > 0 {
		sources := make([]audio.CaptureSource, 0, len(cfg.Audio.CaptureSources))
		for _, name := range cfg.Audio.CaptureSources {
			s, err := audio.ParseCaptureSource(name)
			if err != nil {
				return audio.ProberConfig{}, fmt.Errorf("failed to parse capture sources: %w", err)
			}
			sources = append(sources, s)
		}
		pc.Sources = sources
	}
	for _, rate := range pc.SampleRates {
		if rate <= 0 {
			return audio.ProberConfig{}, fmt.Errorf("invalid sample rate: %d", rate)
		}
	}
	return pc, nil
}
