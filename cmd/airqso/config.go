package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sdsai/airqso-go/core"
	"github.com/sdsai/airqso-go/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("system.exclusive_mode", false)
	v.SetDefault("system.network.transport", "stdio")
	v.SetDefault("modem.frequency", core.DefaultFrequency)
	v.SetDefault("modem.symbol_rate", core.PSK31SymbolRate)
	v.SetDefault("modem.codec", "raw")
	v.SetDefault("modem.chunk_size", 100)
	v.SetDefault("modem.preamble_symbols", 10)
	v.SetDefault("modem.postamble_symbols", 10)
	v.SetDefault("modem.stop_timeout", "0s")
	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.sample_rates", []int{44100, 22050, 11025, 8000})
	v.SetDefault("audio.capture_sources", []string{"camcorder", "mic", "default"})
	v.SetDefault("audio.wav.realtime", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.outputs", []string{"stderr"})
}

// flagKeys 命令行参数对应的配置项
var flagKeys = map[string]string{
	"backend":    "audio.backend",
	"log-level":  "logging.level",
	"transport":  "system.network.transport",
	"url":        "system.network.websocket.url",
	"token":      "system.network.websocket.access_token",
	"hz":         "modem.frequency",
	"baud":       "modem.symbol_rate",
	"codec":      "modem.codec",
	"tx":         "modem.auto_transmit",
	"rx":         "modem.auto_receive",
	"exclusive":  "system.exclusive_mode",
	"wav-input":  "audio.wav.input",
	"wav-output": "audio.wav.output",
}

// loadConfig 读取配置文件、环境变量与命令行参数，优先级从低到高
func loadConfig(path string, flags *pflag.FlagSet) (core.Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/airqso")
	}

	v.SetEnvPrefix("AIRQSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return core.Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return core.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg core.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.System.Network.Transport == "websocket" && cfg.System.Network.Websocket == nil {
		cfg.System.Network.Websocket = &core.WebsocketConfig{}
	}
	return cfg, nil
}

// setup 加载配置并初始化日志，返回的 closer 关闭日志文件
func setup(flags *pflag.FlagSet) (core.Config, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig(configPath, flags)
	if err != nil {
		return core.Config{}, nil, nil, err
	}

	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Outputs: cfg.Logging.Outputs,
	}
	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stderr"}
	}

	closer, err := logger.Init(logCfg)
	if err != nil {
		return core.Config{}, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Logger(), closer, nil
}
