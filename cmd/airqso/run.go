package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/core"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bridge the transport to the audio workers",
	Long: `Bridge the configured transport to the transmit and receive workers.

With the stdio transport, typed lines are queued for transmission and
decoded bytes are printed. Commands:
  /tx on|off   start or stop transmitting
  /rx on|off   start or stop receiving
  /hz N        set the carrier frequency for the next start
  /status      show the current state
  /clear       drop text not yet transmitted`,
	RunE: runBridge,
}

func init() {
	f := runCmd.Flags()
	f.String("transport", "", "transport: stdio or websocket")
	f.String("url", "", "websocket server url")
	f.String("token", "", "websocket access token")
	f.Int("hz", 0, "carrier frequency in Hz")
	f.Float64("baud", 0, "symbol rate")
	f.String("codec", "", "symbol codec")
	f.Bool("tx", false, "start transmitting immediately")
	f.Bool("rx", false, "start receiving immediately")
	f.Bool("exclusive", false, "half duplex: never transmit and receive together")
	f.String("wav-input", "", "wav backend: file to receive from")
	f.String("wav-output", "", "wav backend: file to transmit into")
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup(cmd.Flags())
	if err != nil {
		return err
	}
	defer closer.Close()
	defer log.Info("Shutting down airqso")

	platform, err := core.NewPlatform(cfg, log)
	if err != nil {
		return err
	}
	if c, ok := platform.(io.Closer); ok {
		defer c.Close()
	}
	proberCfg, err := core.NewProberConfig(cfg)
	if err != nil {
		return err
	}

	client, err := core.NewClient(cfg, audio.NewProber(platform, proberCfg, log), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error("Failed to close client", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting airqso",
		"backend", platform.Name(),
		"transport", cfg.System.Network.Transport,
		"hz", cfg.Modem.Frequency)
	return client.Run(ctx)
}
