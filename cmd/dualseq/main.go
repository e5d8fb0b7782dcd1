// Package main is the entry point for the dualseq CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/dualseq/pkg/api"
	"github.com/james-see/dualseq/pkg/app"
	"github.com/james-see/dualseq/pkg/config"
	"github.com/james-see/dualseq/pkg/logger"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
	"github.com/james-see/dualseq/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile string
	backend    string
	shadow     bool
	midiDir    string
	soundFont  string
	outputPort string
	logLevel   string
	serverPort int

	loop      bool
	loopCount int
	length    float64
	tempo     float64
	bars      int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dualseq",
	Short: "Play MIDI sequences through a legacy or modern sequencer backend",
	Long: `dualseq loads Standard MIDI Files and plays them through one of two
sequencer backends behind a single control surface.

The legacy backend drives MIDI output ports in ticks. The modern backend
works in seconds and can render through a SoundFont synth.

Examples:
  dualseq info song.mid
  dualseq play song --loop
  dualseq play song --backend modern --soundfont gm.sf2
  dualseq dump song --shadow
  dualseq generate demo.mid
  dualseq tui
  dualseq serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: initLogging,
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Load a sequence and print its tracks",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var playCmd = &cobra.Command{
	Use:   "play <name>",
	Short: "Play a sequence until it ends or is interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <name>",
	Short: "Load a sequence and print the backend debug dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE:  runPorts,
}

var generateCmd = &cobra.Command{
	Use:   "generate <output.mid>",
	Short: "Write a demo sequence with tracks of different lengths",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or save it with --save",
	RunE:  runConfig,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default ~/.config/dualseq/config.yaml)")
	pf.StringVarP(&backend, "backend", "b", "", "Sequencer backend (legacy, modern)")
	pf.BoolVar(&shadow, "shadow", false, "Also load every sequence into the other backend")
	pf.StringVar(&midiDir, "midi-dir", "", "Directory sequences are loaded from")
	pf.StringVar(&soundFont, "soundfont", "", "SoundFont for the modern backend synth")
	pf.StringVarP(&outputPort, "output", "o", "", "MIDI output port name")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// play command
	playCmd.Flags().BoolVarP(&loop, "loop", "l", false, "Loop every track over the sequence length")
	playCmd.Flags().IntVar(&loopCount, "loop-count", sequencer.LoopForever, "Times to play the loop region, 0 repeats forever")
	playCmd.Flags().Float64Var(&length, "length", 0, "Override the sequence length in beats")

	// generate command
	generateCmd.Flags().Float64Var(&tempo, "tempo", source.DefaultTempo, "Tempo in BPM")
	generateCmd.Flags().IntVar(&bars, "bars", 2, "Length of the longest track in bars")

	// config command
	configCmd.Flags().Bool("save", false, "Write the effective configuration to the config file")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config)")

	// Add commands
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and applies any flags that were set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFrom(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("shadow") {
		cfg.Shadow = shadow
	}
	if flags.Changed("midi-dir") {
		cfg.MIDIDir = midiDir
	}
	if flags.Changed("soundfont") {
		cfg.SoundFont = soundFont
	}
	if flags.Changed("output") {
		cfg.OutputPort = outputPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return logger.InitLogger(cfg.LogLevel)
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Load(args[0]); err != nil {
		return err
	}
	printStatus(a.Sequencer.Status())
	return nil
}

func printStatus(st sequencer.Status) {
	fmt.Printf("Source:  %s\n", st.Source)
	fmt.Printf("Backend: %s\n", st.Backend)
	fmt.Printf("Length:  %.2f beats\n", st.Length)
	fmt.Printf("Tracks:  %d\n", st.TrackCount)
	for _, t := range st.Tracks {
		fmt.Printf("  %2d  %6.2f beats  loop %.2f x %d  %s\n",
			t.Index, t.Length, t.Loop.Duration, t.Loop.Count, t.Destination)
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Load(args[0]); err != nil {
		return err
	}

	seq := a.Sequencer
	if length > 0 {
		seq.SetLength(sequencer.Beats(length))
	}
	if loop {
		seq.LoopOn()
		if loopCount != sequencer.LoopForever {
			seq.SetLoopInfo(seq.Length(), loopCount)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Playing %s on the %s backend (%.2f beats). Ctrl+C to stop.\n", args[0], seq.Kind(), seq.Length())
	seq.Play()
	if !seq.IsPlaying() {
		return fmt.Errorf("%s backend did not start", seq.Kind())
	}
	defer seq.Stop()

	// Playback ends on its own only when no track loops forever
	end := seq.Length()
	if loop && loopCount != sequencer.LoopForever {
		end *= sequencer.Beats(loopCount)
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		case <-ticker.C:
			if loop && loopCount == sequencer.LoopForever {
				continue
			}
			if seq.Position() >= end {
				fmt.Println("Done")
				return nil
			}
		}
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Load(args[0]); err != nil {
		return err
	}
	return a.Sequencer.DebugDump(os.Stdout)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports := midi.GetOutPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("  %d: %s\n", p.Number(), p.String())
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if bars < 1 {
		return fmt.Errorf("--bars must be at least 1")
	}
	longest := sequencer.Beats(bars * 4)

	var melody []source.Note
	scale := []uint8{60, 62, 64, 65, 67, 69, 71, 72}
	for i := 0; i < int(longest); i++ {
		melody = append(melody, source.Note{At: float64(i), Duration: 0.5, Key: scale[i%len(scale)], Velocity: 100})
	}
	var bass []source.Note
	for i := 0; i < int(longest/2); i += 2 {
		bass = append(bass, source.Note{At: float64(i), Duration: 1, Key: 36, Velocity: 110, Channel: 1})
	}

	data, err := source.Build(tempo,
		source.TrackSpec{Name: "melody", Length: float64(longest), Notes: melody},
		source.TrackSpec{Name: "bass", Length: float64(longest / 2), Notes: bass},
	)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return err
	}

	fmt.Printf("Wrote %s (%d bars at %.0f BPM)\n", args[0], bars, tempo)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if configFile != "" {
			err = cfg.SaveTo(configFile)
		} else {
			err = cfg.Save()
		}
		if err != nil {
			return err
		}
		fmt.Println("Configuration saved")
		return nil
	}

	fmt.Printf("backend:    %s\n", cfg.Backend)
	fmt.Printf("shadow:     %t\n", cfg.Shadow)
	fmt.Printf("midiDir:    %s\n", cfg.MIDIDir)
	fmt.Printf("soundFont:  %s\n", cfg.SoundFont)
	fmt.Printf("outputPort: %s\n", cfg.OutputPort)
	fmt.Printf("sampleRate: %d\n", cfg.SampleRate)
	fmt.Printf("logLevel:   %s\n", strings.ToLower(cfg.LogLevel))
	fmt.Printf("serverPort: %d\n", cfg.ServerPort)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return tui.Run(a)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.Config.ServerPort
	if serverPort != 0 {
		port = serverPort
	}
	fmt.Printf("Starting API server on port %d...\n", port)
	return api.StartServer(a, port)
}
