package main

import (
	"fmt"
	"time"

	"github.com/smiiisato/linmot-ecat"
	"github.com/spf13/cobra"
)

func newRecordCommand() *cobra.Command {
	var basename string
	var seconds float64

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Bring up the bus and capture a scope CSV for a fixed duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := loadSeqConfig()
			adapter, err := buildAdapter(sc)
			if err != nil {
				return err
			}
			session, err := ecat.BringUp(adapter, sc.Adapter, sc.ExpectedSlaves, sc.MonitorChannels, sc.ParamChannels)
			if err != nil {
				return err
			}

			cycleTime := time.Duration(sc.CycleMs * float64(time.Millisecond))
			bridge := ecat.NewBridge(1024, 1024, ecat.LogLevelInfo)
			engineCfg := ecat.DefaultCycleEngineConfig(cycleTime)
			engineCfg.ScopeEnabled = true
			engine := ecat.NewCycleEngine(session, bridge, engineCfg)
			go engine.Run()

			writer, err := ecat.NewScopeCSVWriter(basename, 1, sc.MonitorChannels, ecat.DefaultScalingConfig())
			if err != nil {
				return err
			}
			defer writer.Close()

			deadline := time.After(time.Duration(seconds * float64(time.Second)))
			for {
				select {
				case <-deadline:
					engine.Stop()
					fmt.Println("recording complete")
					return nil
				case sample := <-bridge.ScopeChan():
					if err := writer.WriteSample(sample); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&basename, "basename", "capture", "capture directory/file basename")
	cmd.Flags().Float64Var(&seconds, "seconds", 5.0, "recording duration in seconds")
	return cmd
}
