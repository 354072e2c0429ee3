package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/overmindtech/teardown/logging"
	"github.com/overmindtech/teardown/tracing"
)

var cfgFile string
var logLevel string

// runID Identifies this run in logs and traces
var runID = uuid.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aws-teardown",
	Short: "Deletes the resources in one or more AWS regions",
	Long: `Deletes Auto Scaling groups, ECS clusters, EC2 instances, Lambda functions,
VPC peering connections, OpenSearch domains, Kinesis and Firehose streams, EKS
clusters and CloudFormation stacks from the given regions, in a fixed order.

This is destructive and cannot be undone. Use --dry-run to see what would be
deleted first.
`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		exitcode := Teardown(ctx, cmd.OutOrStdout())
		tracing.ShutdownTracer(ctx)
		os.Exit(exitcode)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// General config options
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Set the log level. Valid values: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().Bool("json-log", false, "Set to true to emit logs as json for easier parsing.")

	addAwsFlags(rootCmd)
	addTeardownFlags(rootCmd)
	addWaitFlags(rootCmd)

	// tracing
	rootCmd.PersistentFlags().String("honeycomb-api-key", "", "If specified, configures opentelemetry libraries to submit traces to honeycomb")
	rootCmd.PersistentFlags().String("sentry-dsn", "", "If specified, configures sentry libraries to capture errors")
	rootCmd.PersistentFlags().String("run-mode", "release", "Set the run mode for this service, 'release', 'debug' or 'test'. Defaults to 'release'.")

	// debugging
	rootCmd.PersistentFlags().Bool("stdout-trace-dump", false, "Dump all otel traces to stdout for debugging")

	// Bind these to viper
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	// Run this before we do anything to set up the loglevel
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Bind flags that haven't been set to the values from viper of we have them
		cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			// Bind the flag to viper only if it has a non-empty default
			if f.DefValue != "" || f.Changed {
				err := viper.BindPFlag(f.Name, f)
				if err != nil {
					log.WithError(err).Fatal("could not bind flag to viper")
				}
			}
		})

		err := logging.Configure(log.StandardLogger(), logging.Options{
			Level: logLevel,
			JSON:  viper.GetBool("json-log"),
			Out:   cmd.OutOrStdout(),
			Fields: log.Fields{
				"run-id": runID.String(),
			},
		})
		if err != nil {
			log.SetLevel(log.InfoLevel)
			log.WithError(err).Error("Could not parse log level, defaulting to info")
		}

		err = tracing.InitTracerWithUpstreams(tracing.Config{
			Component:       "aws-teardown",
			HoneycombAPIKey: viper.GetString("honeycomb-api-key"),
			SentryDSN:       viper.GetString("sentry-dsn"),
			RunMode:         viper.GetString("run-mode"),
			StdoutTraceDump: viper.GetBool("stdout-trace-dump"),
		})
		if err != nil {
			log.Fatal(err)
		}
	}
	// shut down tracing at the end of the process
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		tracing.ShutdownTracer(context.Background())
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	replacer := strings.NewReplacer("-", "_")

	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("Could not read config file")
		}
		log.Infof("Using config file: %v", viper.ConfigFileUsed())
	}
}
