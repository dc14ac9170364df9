package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/nofacetouch/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "nofacetouch",
	Short: "Alerts you when you touch your face",
	Long: `nofacetouch watches the webcam and plays a sound whenever you touch
your face. Train it in two short recordings (hands down, then touching your
face), confirm, and it keeps watching until you quit.`,
	SilenceUsage: true,
	RunE:         runApp,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	addRunFlags(rootCmd)
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// runCmd is the explicit form of the root command.
var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Train on the webcam, then watch for face touches",
	SilenceUsage: true,
	RunE:         runApp,
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("console", false, "Guide training with prompts on stdin instead of the tray")
	cmd.Flags().Bool("no-tray", false, "Do not show the system tray icon")
	cmd.Flags().Bool("no-server", false, "Do not start the local web UI")
	cmd.Flags().String("addr", "", "Address for the local web UI")
	cmd.Flags().Int("camera", -1, "Camera device index")
	cmd.Flags().Float64("threshold", 0, "Touch confidence threshold in (0, 1)")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadSettings reads the config file and environment, then applies flags
// that were set explicitly.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(mustGetString(cmd, "config"))
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = mustGetString(cmd, "log-level")
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = mustGetString(cmd, "addr")
	}
	if cmd.Flags().Changed("no-server") {
		cfg.Server.Enabled = !mustGetBool(cmd, "no-server")
	}
	if cmd.Flags().Changed("camera") {
		cfg.Camera.Device = mustGetInt(cmd, "camera")
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Detection.Threshold = mustGetFloat64(cmd, "threshold")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(cfg.Level())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
