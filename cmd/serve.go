// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/audio"
	"github.com/ColonelBlimp/cwdecoder/internal/config"
	"github.com/ColonelBlimp/cwdecoder/internal/cw"
	"github.com/ColonelBlimp/cwdecoder/internal/dsp"
	"github.com/ColonelBlimp/cwdecoder/internal/logging"
	"github.com/ColonelBlimp/cwdecoder/internal/metrics"
	"github.com/ColonelBlimp/cwdecoder/internal/monitor"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the receive pipeline with a websocket monitor and Prometheus metrics",
	Long: `serve runs the same audio-capture-to-decode pipeline as receive, but
instead of (or in addition to) a terminal dashboard, it exposes decoded
events to GUI front ends over a websocket hub and Prometheus metrics at
/metrics, gated by the monitor_enabled and metrics_enabled settings.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level: settings.LogLevel, File: settings.LogFile,
		MaxSizeMB: settings.LogMaxSizeMB, MaxBackups: settings.LogMaxBackups,
		MaxAgeDays: settings.LogMaxAgeDays, Compress: settings.LogCompress,
	}); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.CloseGlobal()

	m := metrics.New()
	hub := monitor.NewHub()

	httpServers, err := startServeHTTP(settings, m, hub)
	if err != nil {
		return err
	}

	goertzel, err := dsp.NewGoertzel(dsp.GoertzelConfig{
		TargetFrequency: settings.ToneFrequency,
		SampleRate:      settings.SampleRate,
		BlockSize:       settings.BlockSize,
	})
	if err != nil {
		return fmt.Errorf("goertzel: %w", err)
	}

	detector, err := dsp.NewDetector(dsp.DetectorConfig{
		Threshold:       settings.Threshold,
		Hysteresis:      settings.Hysteresis,
		OverlapPct:      settings.OverlapPct,
		AGCEnabled:      settings.AGCEnabled,
		AGCDecay:        settings.AGCDecay,
		AGCAttack:       settings.AGCAttack,
		AGCWarmupBlocks: settings.AGCWarmupBlocks,
	}, goertzel)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	params := cw.DefaultParams()
	params.SpeedWPM = settings.WPM
	params.TolerancePct = settings.TolerancePct
	params.GapUnits = settings.GapUnits
	params.NoiseSpikeThresholdUs = settings.NoiseSpikeThresholdUs
	params.AdaptiveMode = settings.AdaptiveTiming

	receiver, err := cw.NewReceiver(params)
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}

	var decodedCount, errorCount atomic.Int64
	callback := func(ev cw.DecodedEvent) {
		switch {
		case ev.IsError:
			errorCount.Add(1)
			m.IncError("unrecognizable")
		case ev.IsWordSpace:
			decodedCount.Add(1)
			m.IncWordSpace()
		default:
			decodedCount.Add(1)
			m.IncDecodedCharacter()
		}
		hub.Broadcast(ev)
		m.SetReceiverWPM(ev.WPM)
	}

	bridge := cw.NewToneEventBridge(receiver, callback)
	detector.SetCallback(func(event dsp.ToneEvent) { bridge.HandleToneEvent(event) })

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	})
	capture.SetCallback(detector.Process)

	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio: init: %w", err)
	}
	defer capture.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio: start: %w", err)
	}

	bridge.Start(ctx)
	defer bridge.Stop()

	started := time.Now()
	logging.Infof("serve", "listening for CW audio, monitor=%v metrics=%v",
		settings.MonitorEnabled, settings.MetricsEnabled)

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownHTTP(httpServers)
			return nil
		case <-statsTicker.C:
			m.SetReceiverStddev("dot", receiver.Stddev(cw.StatDot))
			logging.Infof("serve", "%s chars decoded, %d errors, %d ws clients, up %s",
				humanize.Comma(decodedCount.Load()), errorCount.Load(), hub.ClientCount(), humanize.Time(started))
		}
	}
}

// startServeHTTP mounts the metrics and monitor HTTP handlers on their
// configured addresses (sharing one server when the addresses match)
// and returns the running servers for shutdown.
func startServeHTTP(settings *config.Settings, m *metrics.Metrics, hub *monitor.Hub) ([]*http.Server, error) {
	var servers []*http.Server

	switch {
	case settings.MetricsEnabled && settings.MonitorEnabled && settings.MetricsAddr == settings.MonitorAddr:
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.Handle("/ws", hub)
		servers = append(servers, serveMux(settings.MetricsAddr, mux))
	default:
		if settings.MetricsEnabled {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			servers = append(servers, serveMux(settings.MetricsAddr, mux))
		}
		if settings.MonitorEnabled {
			mux := http.NewServeMux()
			mux.Handle("/ws", hub)
			servers = append(servers, serveMux(settings.MonitorAddr, mux))
		}
	}

	return servers, nil
}

func serveMux(addr string, mux *http.ServeMux) *http.Server {
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("serve", "http server on %s: %v", addr, err)
		}
	}()
	logging.Infof("serve", "http listening on %s", addr)
	return srv
}

func shutdownHTTP(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warnf("serve", "http shutdown: %v", err)
		}
	}
}
