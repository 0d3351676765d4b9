// cmd/receive.go
package cmd

import (
	"context"
	"fmt"
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
	"github.com/spf13/cobra"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Decode CW from a live audio device and print recognized text",
	Long: `receive captures audio from a device, detects a single CW tone with
the Goertzel algorithm, and feeds the resulting keying edges through the
receiver state machine, printing decoded characters as they resolve.`,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().Bool("dashboard", false, "show a live terminal dashboard instead of plain stdout")
}

func runReceive(cmd *cobra.Command, args []string) error {
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

	showDashboard, _ := cmd.Flags().GetBool("dashboard")
	dash := newDashboard(showDashboard)
	defer dash.Stop()

	var m *metrics.Metrics
	if settings.MetricsEnabled {
		m = metrics.New()
	}

	var hub *monitor.Hub
	if settings.MonitorEnabled {
		hub = monitor.NewHub()
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

	checkTimingSanity(settings, detector)

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
	var corrector *cw.Corrector
	var wordBuf []byte
	if settings.AdaptivePatternEnabled {
		corrector = cw.NewCorrector(settings.AdaptiveMinConfidence)
	}

	callback := func(ev cw.DecodedEvent) {
		switch {
		case ev.IsError:
			errorCount.Add(1)
			m.IncError("unrecognizable")
			dash.AppendSystem("unrecognized representation")
		case ev.IsWordSpace:
			decodedCount.Add(1)
			m.IncWordSpace()
			printOrDash(dash, " ")
			if corrector != nil && len(wordBuf) > 0 {
				if match, ok := corrector.Suggest(string(wordBuf)); ok {
					logging.Infof("receive", "possible correction: %q -> %q (confidence %.2f)", wordBuf, match.Pattern.Text, match.Confidence)
				}
				wordBuf = wordBuf[:0]
			}
		default:
			decodedCount.Add(1)
			m.IncDecodedCharacter()
			printOrDash(dash, string(ev.Character))
			wordBuf = append(wordBuf, ev.Character)
		}
		if hub != nil {
			hub.Broadcast(ev)
		}
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

	if samplesPerDot := capture.SamplesPerDot(settings.WPM); samplesPerDot < settings.BufferSize {
		logging.Warnf("receive", "buffer_size %d frames is longer than one dot (%d frames) at %d WPM; marks may be smeared together rather than resolved at their edges",
			settings.BufferSize, samplesPerDot, settings.WPM)
	}

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

	logging.Info("receive", "listening for CW audio")

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-statsTicker.C:
			wpm := receiver.CurrentWPM()
			dotStddev := receiver.Stddev(cw.StatDot)
			m.SetReceiverStddev("dot", dotStddev)
			dash.SetReceiveStats(wpm, dotStddev, decodedCount.Load(), errorCount.Load())
		}
	}
}

// checkTimingSanity warns when the configured block_size either straddles
// several dots at the configured speed (logged against RecommendedBlockSize)
// or, combined with the detector's hysteresis depth, can't resolve a dot at
// all (logged against MinResolvableMarkUs) - both are silent failure modes
// that otherwise only show up as garbled decodes.
func checkTimingSanity(settings *config.Settings, detector *dsp.Detector) {
	if recommended := dsp.RecommendedBlockSize(settings.SampleRate, settings.WPM); settings.BlockSize != recommended {
		logging.Warnf("receive", "configured block_size %d differs from the recommended %d for %d WPM at %.0f Hz sample rate",
			settings.BlockSize, recommended, settings.WPM, settings.SampleRate)
	}

	idealDotUs := cw.DotCalibration / int64(settings.WPM)
	if minResolvable := detector.MinResolvableMarkUs(settings.SampleRate); minResolvable > idealDotUs {
		logging.Warnf("receive", "detector can only resolve marks of at least %d us, but a dot at %d WPM is %d us; reduce hysteresis or block_size",
			minResolvable, settings.WPM, idealDotUs)
	}
}

func printOrDash(d *dashboard, s string) {
	if d != nil {
		d.AppendCharacter(s)
		return
	}
	fmt.Print(s)
}
