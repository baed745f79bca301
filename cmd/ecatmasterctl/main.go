package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smiiisato/linmot-ecat"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetLevel(log.InfoLevel)

	adapterID := flag.String("i", "\\Device\\NPF_{...}", "raw-Ethernet adapter identifier")
	slaves := flag.Int("n", 1, "expected slave count")
	monCh := flag.Int("m", 4, "monitoring channel count (0..4)")
	parCh := flag.Int("p", 0, "parameter channel count (0..4)")
	cycleMs := flag.Float64("cycle-ms", 2.0, "cycle time in milliseconds")
	virtual := flag.Bool("virtual", true, "use the in-memory virtual adapter instead of real hardware")
	flag.Parse()

	var adapter ecat.Adapter
	if *virtual {
		names := make([]string, *slaves)
		for i := range names {
			names[i] = fmt.Sprintf("LinMot-%d", i+1)
		}
		adapter = ecat.NewVirtualAdapter(names)
	} else {
		fmt.Println("no real adapter binding is wired in this build; pass -virtual")
		os.Exit(1)
	}

	session, err := ecat.BringUp(adapter, *adapterID, *slaves, *monCh, *parCh)
	if err != nil {
		fmt.Printf("bring-up failed: %v\n", err)
		os.Exit(1)
	}
	log.Infof("bus operational, slaves=%v", session.SlaveNames())

	bridge := ecat.NewBridge(1024, 1024, ecat.LogLevelInfo)
	cfg := ecat.DefaultCycleEngineConfig(time.Duration(*cycleMs * float64(time.Millisecond)))
	cfg.ScopeEnabled = true
	cfg.LatencyEnabled = true
	engine := ecat.NewCycleEngine(session, bridge, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		engine.Stop()
	}()

	if err := engine.Run(); err != nil {
		fmt.Printf("cycle engine exited: %v\n", err)
		os.Exit(1)
	}
}
