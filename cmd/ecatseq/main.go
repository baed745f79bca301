package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// seqConfig mirrors Config (see config.go) but is bound from flags,
// environment and an optional config file via viper, matching the
// multi-source config pattern keskad-loco uses for its own CLI.
type seqConfig struct {
	Adapter         string
	ExpectedSlaves  int
	MonitorChannels int
	ParamChannels   int
	CycleMs         float64
	Virtual         bool
}

var cfgFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ecatseq",
		Short: "Sequence runner for a LinMot EtherCAT bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ecatseq.yaml)")
	root.PersistentFlags().String("adapter", "", "raw-Ethernet adapter identifier")
	root.PersistentFlags().Int("slaves", 1, "expected slave count")
	root.PersistentFlags().Int("monitor-channels", 4, "monitoring channel count (0..4)")
	root.PersistentFlags().Int("parameter-channels", 0, "parameter channel count (0..4)")
	root.PersistentFlags().Float64("cycle-ms", 2.0, "cycle time in milliseconds")
	root.PersistentFlags().Bool("virtual", true, "use the in-memory virtual adapter")

	viper.BindPFlag("adapter", root.PersistentFlags().Lookup("adapter"))
	viper.BindPFlag("expected_slaves", root.PersistentFlags().Lookup("slaves"))
	viper.BindPFlag("monitor_channels", root.PersistentFlags().Lookup("monitor-channels"))
	viper.BindPFlag("parameter_channels", root.PersistentFlags().Lookup("parameter-channels"))
	viper.BindPFlag("cycle_ms", root.PersistentFlags().Lookup("cycle-ms"))
	viper.BindPFlag("virtual", root.PersistentFlags().Lookup("virtual"))

	root.AddCommand(newBringupCommand())
	root.AddCommand(newSequenceCommand())
	root.AddCommand(newRecordCommand())

	cobra.OnInitialize(initViper)
	return root
}

func initViper() {
	viper.SetEnvPrefix("ECATSEQ")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ecatseq")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warnf("config file error: %v", err)
		}
	}
}

func loadSeqConfig() seqConfig {
	return seqConfig{
		Adapter:         viper.GetString("adapter"),
		ExpectedSlaves:  viper.GetInt("expected_slaves"),
		MonitorChannels: viper.GetInt("monitor_channels"),
		ParamChannels:   viper.GetInt("parameter_channels"),
		CycleMs:         viper.GetFloat64("cycle_ms"),
		Virtual:         viper.GetBool("virtual"),
	}
}

func main() {
	log.SetLevel(log.InfoLevel)
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
