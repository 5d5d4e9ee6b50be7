// Command sos-trigger watches hardware buttons for SOS gestures and runs the
// escalation countdown, publishing every step to MQTT.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sweeney/sos-trigger/internal/config"
	"gopkg.in/yaml.v3"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sos-trigger",
		Short: "SOS button gesture daemon",
		Long: `sos-trigger watches GPIO buttons or an evdev input device for press
gestures. A fake-call gesture is reported immediately; an SOS gesture arms a
countdown that further presses escalate and that fires an emergency outcome
unless cancelled.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(v, cfg)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default ./sos-trigger.{toml,yaml,json} or /etc/sos-trigger/)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newConfigCmd(), newVersionCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sos-trigger %s\n", version)
		},
	}
}

// loadConfig layers defaults, the config file, environment and flags.
func loadConfig(cmd *cobra.Command) (*viper.Viper, *config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	v := config.New()
	if err := config.ReadFile(v, path); err != nil {
		return nil, nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func printConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
