package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accelgpx/internal/config"
)

const (
	envPrefix         = "ACCELGPX"
	defaultConfigPath = "./accelgpx.yaml"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "accelgpx",
		Short:         "Record accelerometer samples against GPS fixes and export GPX",
		Long:          "accelgpx captures accelerometer samples and GNSS fixes during a tracking session and writes the correlated track as GPX 1.1 with acceleration extensions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigPath, "path to YAML config (env ACCELGPX_CONFIG)")
	flags.String("out-dir", "", "override export.dir (env ACCELGPX_OUT_DIR)")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("out_dir", flags.Lookup("out-dir"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(v),
		newExportCmd(v),
	)
	return rootCmd
}

// loadConfig resolves the config path and export dir through flags and env.
// When optional is set, a missing file at the default path yields a config
// built from defaults alone.
func loadConfig(v *viper.Viper, optional bool) (config.Config, error) {
	path := v.GetString("config")
	override := config.WithExportDir(v.GetString("out_dir"))

	cfg, err := config.Load(path, override)
	if err != nil && optional && !v.IsSet("config") && errors.Is(err, os.ErrNotExist) {
		return config.Parse(nil, override)
	}
	return cfg, err
}
