package main

import (
	"fmt"
	"time"

	"github.com/smiiisato/linmot-ecat"
	"github.com/spf13/cobra"
)

func newSequenceCommand() *cobra.Command {
	var target, vmax, acc, dcc float64

	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Run switch-on, home, and a single motion command against slave 1",
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
			bridge := ecat.NewBridge(256, 256, ecat.LogLevelInfo)
			engineCfg := ecat.DefaultCycleEngineConfig(cycleTime)
			engine := ecat.NewCycleEngine(session, bridge, engineCfg)
			go engine.Run()
			defer engine.Stop()

			drives := make([]*ecat.DriveModel, session.Slaves)
			for i := range drives {
				drives[i] = ecat.NewDriveModel(ecat.DriveIdentity{Index: i + 1}, ecat.DefaultScalingConfig(), session.P)
			}
			fleet := ecat.NewFleet(drives, bridge, cycleTime)

			fleet.SwitchOn(drives[0])
			fleet.Home(drives[0])
			time.Sleep(10 * cycleTime)

			err = fleet.Motion(drives[0], ecat.MotionAbsoluteVAI, ecat.MotionParams{
				Target: target, Vmax: vmax, Acc: acc, Dcc: dcc,
			})
			if err != nil {
				return err
			}
			fmt.Println("sequence issued")
			return nil
		},
	}

	cmd.Flags().Float64Var(&target, "target", 0, "target position (mm)")
	cmd.Flags().Float64Var(&vmax, "vmax", 0.01, "max velocity (m/s)")
	cmd.Flags().Float64Var(&acc, "acc", 0.1, "acceleration (m/s^2)")
	cmd.Flags().Float64Var(&dcc, "dcc", 0.1, "deceleration (m/s^2)")
	return cmd
}
