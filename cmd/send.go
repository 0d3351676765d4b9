// cmd/send.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/config"
	"github.com/ColonelBlimp/cwdecoder/internal/cw"
	"github.com/ColonelBlimp/cwdecoder/internal/logging"
	"github.com/ColonelBlimp/cwdecoder/internal/metrics"
	"github.com/ColonelBlimp/cwdecoder/internal/gen"
	"github.com/ColonelBlimp/cwdecoder/internal/sink"
	"github.com/ColonelBlimp/cwdecoder/internal/tone"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Render text as CW tones through the configured audio sink",
	Long: `send turns characters into tones on a bounded queue and plays them
through the sink named by the generator_sink setting: malgo for a real
audio device, console for a textual sidetone indicator, or null to
discard the audio entirely and only exercise timing.

With no text argument, send reads lines from stdin until EOF.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Bool("dashboard", false, "show a live terminal dashboard instead of plain stdout")
}

func slopeCurveFromName(name string) tone.SlopeCurve {
	switch name {
	case "raised_cosine":
		return tone.CurveRaisedCosine
	case "sine":
		return tone.CurveSine
	case "rectangular":
		return tone.CurveRectangular
	default:
		return tone.CurveLinear
	}
}

func sinkFromName(name string, settings *config.Settings) (gen.Sink, error) {
	switch name {
	case "console":
		return sink.NewConsoleBeeper(os.Stdout), nil
	case "null", "":
		return sink.NewNull(), nil
	case "malgo":
		cfg := sink.DefaultPlaybackConfig()
		cfg.DeviceIndex = settings.DeviceIndex
		return sink.NewPlayback(cfg), nil
	default:
		return nil, fmt.Errorf("send: unknown generator sink %q", name)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
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

	s, err := sinkFromName(settings.GeneratorSink, settings)
	if err != nil {
		return err
	}

	params := cw.DefaultParams()
	params.SpeedWPM = settings.WPM
	params.GapUnits = settings.GapUnits
	params.WeightingPct = settings.GeneratorWeightingPct

	sampleRate := s.PreferredSampleRate()
	curve := slopeCurveFromName(settings.SlopeShape)

	generator, err := gen.New(s, settings.ToneQueueCapacity, sampleRate, settings.SlopeLengthUs, curve, params)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	if err := generator.SetFrequency(settings.GeneratorFrequencyHz); err != nil {
		return fmt.Errorf("generator: frequency: %w", err)
	}
	if err := generator.SetVolume(settings.GeneratorVolumePct); err != nil {
		return fmt.Errorf("generator: volume: %w", err)
	}

	if err := generator.Start(""); err != nil {
		return fmt.Errorf("generator: start: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				qlen := generator.QueueLength()
				m.SetQueueState(qlen, settings.ToneQueueCapacity, qlen > 0)
				dash.SetSendStats(qlen, settings.ToneQueueCapacity)
			}
		}
	}()

	sendErr := sendInput(ctx, generator, args)

	stop()
	<-statsDone

	if err := generator.Stop(); err != nil {
		logging.Warnf("send", "stop: %v", err)
	}
	if sendErr != nil {
		return sendErr
	}
	return generator.Err()
}

// sendInput feeds either the single text argument or stdin, line by
// line, into the generator's queue until EOF or ctx is cancelled.
func sendInput(ctx context.Context, generator *gen.Generator, args []string) error {
	if len(args) > 0 {
		return enqueueLine(ctx, generator, args[0])
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := enqueueLine(ctx, generator, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func enqueueLine(ctx context.Context, generator *gen.Generator, line string) error {
	if err := generator.EnqueueString(line); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := generator.EnqueueCharacter(' '); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logging.Infof("send", "queued %q", line)
	return nil
}
