package core

import "time"

// PSK31SymbolRate PSK31 标准符号率
const PSK31SymbolRate = 31.25

// DefaultFrequency 默认音频载波频率，700Hz 是一个清晰可听的音调
const DefaultFrequency = 700

// Config 是客户端配置结构（与YAML文件的结构对应）
type Config struct {
	System struct {
		// ExclusiveMode 半双工：发送与接收不能同时进行
		ExclusiveMode bool `mapstructure:"exclusive_mode"`

		Network struct {
			Transport string           `mapstructure:"transport"`
			Websocket *WebsocketConfig `mapstructure:"websocket"`
		} `mapstructure:"network"`
	} `mapstructure:"system"`

	Modem struct {
		Frequency        int           `mapstructure:"frequency"`
		SymbolRate       float64       `mapstructure:"symbol_rate"`
		Codec            string        `mapstructure:"codec"`
		ChunkSize        int           `mapstructure:"chunk_size"`
		PreambleSymbols  int           `mapstructure:"preamble_symbols"`
		PostambleSymbols int           `mapstructure:"postamble_symbols"`
		StopTimeout      time.Duration `mapstructure:"stop_timeout"`
		AutoTransmit     bool          `mapstructure:"auto_transmit"`
		AutoReceive      bool          `mapstructure:"auto_receive"`
	} `mapstructure:"modem"`

	Audio struct {
		Backend        string   `mapstructure:"backend"`
		SampleRates    []int    `mapstructure:"sample_rates"`
		CaptureSources []string `mapstructure:"capture_sources"`
		Wav            struct {
			Input    string `mapstructure:"input"`
			Output   string `mapstructure:"output"`
			Realtime bool   `mapstructure:"realtime"`
		} `mapstructure:"wav"`
	} `mapstructure:"audio"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

type WebsocketConfig struct {
	URL         string `mapstructure:"url"`
	AccessToken string `mapstructure:"access_token"`
}
