// cmd/selftest.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/config"
	"github.com/ColonelBlimp/cwdecoder/internal/cw"
	"github.com/ColonelBlimp/cwdecoder/internal/gen"
	"github.com/ColonelBlimp/cwdecoder/internal/logging"
	"github.com/ColonelBlimp/cwdecoder/internal/sink"
	"github.com/ColonelBlimp/cwdecoder/internal/tone"
	"github.com/spf13/cobra"
)

const selftestPhrase = "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG 1234567890"

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Drive a generator directly into a receiver and verify loopback decoding",
	Long: `selftest wires a Generator's tone boundaries directly into a Receiver's
NotifyMarkBegin/NotifyMarkEnd via the key/edge bridge, bypassing audio
capture and tone detection entirely, then checks that the decoded text
matches what was sent. It exits non-zero if the round trip produced any
errors or a mismatch.`,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := logging.Init(logging.Config{Level: settings.LogLevel}); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.CloseGlobal()

	phrase := selftestPhrase
	if len(args) > 0 {
		phrase = strings.ToUpper(strings.Join(args, " "))
	}

	// Run the loopback at a fixed, fast speed rather than the configured
	// receive speed: selftest exercises the bridge's timing logic, not
	// the user's preferred WPM, and a higher speed keeps it quick.
	const selftestWPM = 40

	sendParams := cw.DefaultParams()
	sendParams.SpeedWPM = selftestWPM

	recvParams := cw.DefaultParams()
	recvParams.SpeedWPM = selftestWPM
	recvParams.TolerancePct = settings.TolerancePct
	recvParams.GapUnits = settings.GapUnits

	receiver, err := cw.NewReceiver(recvParams)
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}

	var mu sync.Mutex
	var decoded strings.Builder
	var errorCount int
	callback := func(ev cw.DecodedEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case ev.IsError:
			errorCount++
		case ev.IsWordSpace:
			decoded.WriteByte(' ')
		default:
			decoded.WriteByte(ev.Character)
		}
	}

	toneBridge := cw.NewToneEventBridge(receiver, callback)
	toneBridge.SetPollInterval(time.Millisecond)

	s := sink.NewNull()
	generator, err := gen.New(s, settings.ToneQueueCapacity, s.PreferredSampleRate(), settings.SlopeLengthUs, tone.CurveLinear, sendParams)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}

	keyBridge := gen.NewBridge(receiver)
	generator.AttachBridge(keyBridge)

	if err := generator.Start(""); err != nil {
		return fmt.Errorf("generator: start: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	toneBridge.Start(ctx)

	if err := generator.EnqueueString(phrase); err != nil {
		cancel()
		toneBridge.Stop()
		_ = generator.Stop()
		return fmt.Errorf("selftest: enqueue: %w", err)
	}

	if err := generator.Stop(); err != nil {
		cancel()
		toneBridge.Stop()
		return fmt.Errorf("selftest: %w", err)
	}

	// Let the poll loop drain the final word gap after the last tone.
	time.Sleep(50 * time.Millisecond)
	cancel()
	toneBridge.Stop()

	mu.Lock()
	got := strings.TrimSpace(decoded.String())
	errs := errorCount
	mu.Unlock()

	want := strings.Join(strings.Fields(phrase), " ")
	logging.Infof("selftest", "sent %q, decoded %q, errors=%d", want, got, errs)

	if errs > 0 {
		return fmt.Errorf("selftest: %d decode errors", errs)
	}
	if got != want {
		return fmt.Errorf("selftest: decoded text %q does not match sent text %q", got, want)
	}

	fmt.Println("selftest: ok")
	return nil
}
