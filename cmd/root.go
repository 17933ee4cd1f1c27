package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  = logrus.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ncds",
	Short: "Command-line client for the NCDS storage gateway",
	Long: `ncds uploads, downloads, lists and deletes files on an NCDS storage
gateway over HTTP with Basic authentication. Remote files are addressed by
path; the client looks up the gateway's file id from the listing.`,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ncds.yaml)")
	rootCmd.PersistentFlags().String("base-url", "", "Gateway base URL")
	rootCmd.PersistentFlags().StringP("username", "u", "", "Gateway username")
	rootCmd.PersistentFlags().StringP("password", "P", "", "Gateway password")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout (0 disables)")
	rootCmd.PersistentFlags().Bool("insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().Bool("enable-telemetry", false, "Enable OpenTelemetry tracing")

	_ = viper.BindPFlag("remote.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("remote.username", rootCmd.PersistentFlags().Lookup("username"))
	_ = viper.BindPFlag("remote.password", rootCmd.PersistentFlags().Lookup("password"))
	_ = viper.BindPFlag("remote.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("remote.insecure_skip_verify", rootCmd.PersistentFlags().Lookup("insecure"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))
	_ = viper.BindPFlag("telemetry.enabled", rootCmd.PersistentFlags().Lookup("enable-telemetry"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ncds")
	}

	// remote.base_url becomes NCDS_REMOTE_BASE_URL
	viper.SetEnvPrefix("NCDS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setupLogging()
}

func setupLogging() {
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", viper.GetString("log.level"))
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if viper.GetBool("log.json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// GetLogger returns the process-wide logger
func GetLogger() *logrus.Logger {
	return logger
}
