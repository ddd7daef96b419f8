// airqso 通过符号编解码器把字节流（终端或websocket）桥接到声卡
//
// 用法:
//
//	airqso [flags] <command>
//
// 命令:
//
//	run      - 把传输层桥接到收发工作者
//	probe    - 显示每个方向协商出的设备配置
//	devices  - 列出后端可见的音频设备
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "airqso",
	Short: "Acoustic BPSK modem bridge",
	Long: `airqso - send and receive bytes over the air through the sound card.

Configuration is read from config.yaml in ., ./config or /etc/airqso,
and every key can be overridden with an AIRQSO_ environment variable,
e.g. AIRQSO_MODEM_FREQUENCY=1000.

Examples:
  # Chat from the terminal, receiving and transmitting on 700 Hz
  airqso run --rx --tx

  # Loop back through WAV files without a sound card
  airqso run --backend wav --wav-output tx.wav --tx < message.txt`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging to stderr")
	rootCmd.PersistentFlags().String("backend", "", "audio backend: portaudio, malgo or wav")
	rootCmd.PersistentFlags().String("log-level", "", "log level: none, debug, info, warn or error")

	rootCmd.AddCommand(runCmd, probeCmd, devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
