package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/modserver/internal/app"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	flag.Parse()

	srv := app.New(*cfgFileName)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot start: %s\n", err)
		srv.Stop()
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	// USR1 rescans every branch, USR2 writes the download counters out.
	for sig := range sigs {
		switch sig {
		case syscall.SIGUSR1:
			go srv.Resync()
		case syscall.SIGUSR2:
			go srv.Dump()
		default:
			fmt.Printf("Received %s, shutting down...\n", sig)
			srv.Stop()
			fmt.Println("done")

			return
		}
	}
}
