// Command feedsim runs a standalone simulated brokerage gateway. It speaks
// the full wire dialect against seeded deterministic state, for local
// development and soak testing without upstream connectivity.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tradegw/internal/feedsim"
)

func main() {
	if err := run(); err != nil {
		log.Printf("feedsim: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to JSON config (optional)")
	endpointFlag := flag.String("endpoint", "", "listen endpoint, overrides config")
	flag.Parse()

	var cfg feedsim.Config
	if *configFlag != "" {
		loaded, err := feedsim.LoadConfig(*configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *endpointFlag != "" {
		cfg.Endpoint = *endpointFlag
	}

	gw, err := feedsim.NewGateway(cfg)
	if err != nil {
		return err
	}
	if err := gw.Start(); err != nil {
		return err
	}

	// Fault injection at runtime: SIGUSR1 drops every live session,
	// SIGUSR2 toggles the stall (sessions stay open but go mute).
	faults := make(chan os.Signal, 1)
	signal.Notify(faults, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		stalled := false
		for sig := range faults {
			switch sig {
			case syscall.SIGUSR1:
				log.Printf("dropping all sessions")
				gw.DropSessions()
			case syscall.SIGUSR2:
				stalled = !stalled
				log.Printf("stall: %v", stalled)
				gw.Stall(stalled)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	return gw.Close()
}
