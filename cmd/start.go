package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chip8/emu/cpu"
	"chip8/emu/screen"
	"chip8/emu/sound"
)

var startCmd = &cobra.Command{
	Use:   "start path/to/rom",
	Short: "load a ROM and start the emulator",
	Args:  cobra.ExactArgs(1),
	RunE:  start,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().IntP("clock", "c", 700, "instruction clock speed in Hz")
	startCmd.Flags().Float64P("scale", "s", 10, "window scale factor")
	startCmd.Flags().Bool("mute", false, "disable the buzzer")
	startCmd.Flags().Bool("debug", false, "log recoverable machine errors")

	cobra.CheckErr(viper.BindPFlag("clock", startCmd.Flags().Lookup("clock")))
	cobra.CheckErr(viper.BindPFlag("scale", startCmd.Flags().Lookup("scale")))
	cobra.CheckErr(viper.BindPFlag("mute", startCmd.Flags().Lookup("mute")))
	cobra.CheckErr(viper.BindPFlag("debug", startCmd.Flags().Lookup("debug")))
}

func start(cmd *cobra.Command, args []string) error {
	logger := newLogger(viper.GetBool("debug"))

	clock := viper.GetInt("clock")
	if clock < 1 {
		return fmt.Errorf("clock speed must be at least 1Hz, got %d", clock)
	}

	rom, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	machine := cpu.New()
	defer machine.Close()

	if err := machine.Load(rom); err != nil {
		return err
	}

	win, err := screen.New("chip8 - "+filepath.Base(args[0]), viper.GetFloat64("scale"))
	if err != nil {
		return err
	}
	machine.SetDisplay(win)
	machine.SetInput(win)

	if !viper.GetBool("mute") {
		buzzer, err := sound.NewBuzzer()
		if err != nil {
			logger.Warn("buzzer unavailable, continuing muted", log.Err(err))
		} else {
			machine.SetSound(buzzer)
		}
	}

	logger.Info("machine running",
		log.String("rom", args[0]),
		log.Int("rom_bytes", len(rom)),
		log.Int("clock_hz", clock))

	go tickLoop(machine, win, logger, clock)

	// the window loop owns the main thread until the user closes it
	win.Run()
	return nil
}

// tickLoop drives the execution engine at the configured clock speed.
// The engine classifies its own errors; this loop decides what to do
// with them: recoverable ones are logged and skipped, fatal ones end
// execution.
func tickLoop(machine *cpu.CPU, win *screen.Window, logger *log.Logger, clock int) {
	tick := time.NewTicker(time.Second / time.Duration(clock))
	defer tick.Stop()

	for range tick.C {
		if win.Closed() {
			return
		}

		if err := machine.Tick(); err != nil {
			if cpu.Fatal(err) {
				logger.Error("machine halted", log.Err(err))
				return
			}
			logger.Debug("recoverable machine error", log.Err(err))
		}
	}
}

func newLogger(debug bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	}
	return log.NewWithConfig(cfg)
}
