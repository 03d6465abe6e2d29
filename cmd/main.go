package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/maeshinshin/mdnssd"
)

func main() {
	app := &cli.App{
		Name:  "mdnssd",
		Usage: "browse mDNS / DNS-SD services on the local link",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("debug") {
				mdnssd.SetDebug()
			}
			return nil
		},
		Commands: []*cli.Command{browseCommand()},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"b"},
		Usage:   "Browse a service type until interrupted.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "service type to browse", Value: mdnssd.DefaultServiceType},
			&cli.BoolFlag{Name: "no-expire", Usage: "keep instances after their TTL runs out"},
			&cli.DurationFlag{Name: "interval", Usage: "re-query periodically"},
			&cli.DurationFlag{Name: "timeout", Usage: "stop after this long"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Action: browse,
	}
}

// flagConfig overlays the flags that were set explicitly on cfg.
func flagConfig(ctx *cli.Context, cfg fileConfig) fileConfig {
	if ctx.IsSet("type") || cfg.ServiceType == "" {
		cfg.ServiceType = ctx.String("type")
	}
	if ctx.IsSet("no-expire") {
		cfg.KeepExpired = ctx.Bool("no-expire")
	}
	if ctx.IsSet("interval") {
		cfg.BrowseInterval = ctx.Duration("interval")
	}
	if ctx.IsSet("metrics-addr") {
		cfg.MetricsAddr = ctx.String("metrics-addr")
	}
	return cfg
}

func browse(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return err
	}
	cfg = flagConfig(ctx, cfg)

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout := ctx.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	updates := make(chan error, 16)
	f, err := mdnssd.New(func(err error) {
		select {
		case updates <- err:
		default:
		}
	}, cfg.Config, mdnssd.WithRegisterer(reg))
	if err != nil {
		return err
	}
	if err := f.Start(runCtx); err != nil {
		return err
	}
	defer f.Shutdown()

	fmt.Println(color.GreenString("Browsing %s. Press Ctrl+C to exit.", cfg.ServiceType))
	for {
		select {
		case err := <-updates:
			if err != nil {
				fmt.Println(color.RedString("Error: %v", err))
				continue
			}
			printInstances(os.Stdout, f.Instances())
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				printInstances(os.Stdout, f.Instances())
			}
			return nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println(color.RedString("Metrics server: %v", err))
		}
	}()
	return srv
}

func printInstances(w io.Writer, instances []mdnssd.Instance) {
	fmt.Fprintln(w, color.YellowString("%d instance(s)", len(instances)))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHOST\tADDRESS\tPORT\tTTL\tTXT")
	for _, inst := range instances {
		addr := "-"
		if inst.Address.IsValid() {
			addr = inst.Address.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			color.BlueString(inst.Name), inst.Host, addr, inst.Port, inst.TTL, strings.Join(inst.TXT, " "))
	}
	tw.Flush()
}
