package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maeshinshin/mdnssd"
	"github.com/maeshinshin/mdnssd/example/util"
)

var (
	debug       = flag.Bool("debug", false, "Enable debug mode")
	serviceType = flag.String("type", "_http._tcp.local", "Service type to browse")
)

func main() {
	flag.Parse()

	if *debug {
		mdnssd.SetDebug()
	}

	ip, err := util.GetOutboundIP()
	if err != nil {
		fmt.Println("Error getting outbound IP:", err)
		return
	}
	fmt.Println("Browsing from", ip)

	cfg := mdnssd.DefaultConfig()
	cfg.ServiceType = *serviceType

	changed := make(chan struct{}, 1)
	f, err := mdnssd.New(func(err error) {
		if err != nil {
			fmt.Println("Discovery error:", err)
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	}, cfg)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := f.Start(ctx); err != nil {
		panic(err)
	}
	defer f.Shutdown()

	fmt.Println("mDNS browser running. Press Ctrl+C to exit.")
	for {
		select {
		case <-changed:
			for _, inst := range f.Instances() {
				fmt.Printf("%s at %s:%d %v\n", inst.Name, inst.Address, inst.Port, inst.TXT)
			}
			fmt.Println("responders:", f.IPs(""))
		case <-ctx.Done():
			return
		}
	}
}
