package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/sensorhub/internal/app"
	"github.com/relabs-tech/sensorhub/internal/config"
)

var version = "dev"

func ServeCmdRunE(cmd *cobra.Command, _ []string) error {
	if err := config.InitGlobal(cmd); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Infof("starting sensorhubd %s", version)
	return app.Run(ctx, config.Get())
}

func ServeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().IntP("port", "p", config.DefaultAPIPort, "port that the API listens on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the API listens on, default to 0.0.0.0")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "serve",
		SuggestFor: []string{
			"ru", "ser",
		},
		Short: "serve drives the LSM6DSM sensor hub using predefined configs.",
		Long: `serve drives the LSM6DSM sensor hub using predefined configs, by the following order:
1. path specified in --config flag
2. path defined SENSORHUB_CONFIG environment variable
3. default location $HOME/.config/sensorhub/config.yaml, /etc/sensorhub/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
		Example:      `  sensorhubd serve --config=/path/to/config.yaml`,
		RunE:         ServeCmdRunE,
		SilenceUsage: true,
	}
	ServeCmdFlags(cmd)
	return cmd
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output path")
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "init",
		SuggestFor: []string{
			"ini", "in",
		},
		Short: "init create a configuration template",
		Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/sensorhub/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
		Example: `  sensorhubd init --print
  sensorhubd init -o /path/to/config.yaml -y`,
		RunE: config.InitCfg,
	}
	InitCmdFlags(cmd)
	return cmd
}

// ConsoleCmdRunE prints everything the daemon publishes.
func ConsoleCmdRunE(cmd *cobra.Command, _ []string) error {
	if err := config.InitGlobal(cmd); err != nil {
		return err
	}
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunConsoleMQTT(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID+"-console", cfg.MQTT.TopicPrefix, cmd.OutOrStdout())
}

func NewConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "console",
		Short:        "console prints the frames published on MQTT",
		RunE:         ConsoleCmdRunE,
		SilenceUsage: true,
	}
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
	return cmd
}

// NewRootCmd assembles the sensorhubd command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "sensorhubd",
		Short:   "LSM6DSM sensor-hub daemon",
		Long:    "sensorhubd drives an LSM6DSM and its sensor-hub slaves over SPI and publishes their events on MQTT.",
		Version: version,
	}
	root.AddCommand(newServeCmd(), newInitCmd(), NewConsoleCmd())
	return root
}

func Execute() {
	if err := fang.Execute(context.Background(), NewRootCmd()); err != nil {
		os.Exit(1)
	}
}
