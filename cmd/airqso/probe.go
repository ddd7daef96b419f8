package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sdsai/airqso-go/audio"
	"github.com/sdsai/airqso-go/core"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	labelStyle = lipgloss.NewStyle().Bold(true).Width(10)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f87"))
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the device configuration negotiated for each direction",
	RunE:  runProbe,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices seen by the backend",
	RunE:  runDevices,
}

func init() {
	probeCmd.Flags().Float64("baud", 0, "symbol rate used to size buffers")
}

func openPlatform(cmd *cobra.Command) (core.Config, *slog.Logger, audio.Platform, func(), error) {
	cfg, log, closer, err := setup(cmd.Flags())
	if err != nil {
		return core.Config{}, nil, nil, nil, err
	}
	platform, err := core.NewPlatform(cfg, log)
	if err != nil {
		closer.Close()
		return core.Config{}, nil, nil, nil, err
	}
	cleanup := func() {
		if c, ok := platform.(io.Closer); ok {
			c.Close()
		}
		closer.Close()
	}
	return cfg, log, platform, cleanup, nil
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, log, platform, cleanup, err := openPlatform(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	proberCfg, err := core.NewProberConfig(cfg)
	if err != nil {
		return err
	}
	prober := audio.NewProber(platform, proberCfg, log)
	symbolRate := cfg.Modem.SymbolRate
	if symbolRate <= 0 {
		symbolRate = core.PSK31SymbolRate
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s @ %.2f baud", platform.Name(), symbolRate)))

	var failed []error
	for _, dir := range []audio.Direction{audio.Playback, audio.Capture} {
		var (
			dev audio.Device
			err error
		)
		if dir == audio.Playback {
			dev, err = prober.FindPlaybackDevice(symbolRate)
		} else {
			dev, err = prober.FindCaptureDevice(symbolRate)
		}
		if err != nil {
			fmt.Fprintln(out, labelStyle.Render(dir.String()), errorStyle.Render(err.Error()))
			failed = append(failed, err)
			continue
		}
		fmt.Fprintln(out, labelStyle.Render(dir.String()), dev.Config(),
			dimStyle.Render(fmt.Sprintf("buffer %d bytes", dev.BufferSize())))
		_ = dev.Release()
	}
	return errors.Join(failed...)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	_, _, platform, cleanup, err := openPlatform(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	enum, ok := platform.(audio.Enumerator)
	if !ok {
		return fmt.Errorf("backend %s cannot list devices", platform.Name())
	}
	infos, err := enum.Devices()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(platform.Name()))
	for _, info := range infos {
		var tags []string
		if info.IsDefaultInput {
			tags = append(tags, "default input")
		}
		if info.IsDefaultOutput {
			tags = append(tags, "default output")
		}
		line := fmt.Sprintf("%-40s in %d  out %d", info.Name, info.MaxInputChannels, info.MaxOutputChannels)
		if len(tags) > 0 {
			line += "  " + dimStyle.Render(strings.Join(tags, ", "))
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
