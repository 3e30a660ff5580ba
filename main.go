package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/discovery"
	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/logger"
	"github.com/nixxel-company-limited/escpos-print-bridge/printer"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/server"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

func main() {
	fs := pflag.NewFlagSet("escpos-bridge", pflag.ExitOnError)
	config.RegisterFlags(fs)
	printText := fs.String("print", "", "print TEXT on the active printer and exit")
	barcode := fs.String("barcode", "", "print a barcode with DATA on the active printer and exit")
	preferred := fs.String("preferred", "", "preferred transport: bluetooth, usb or lan")
	discover := fs.Bool("discover", false, "list printers and exit")
	_ = fs.Parse(os.Args[1:])

	if err := run(fs, *printText, *barcode, *preferred, *discover); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet, printText, barcode, preferred string, discover bool) error {
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := profile.NewViperStore(cfg.Profile.Path, log)
	if err != nil {
		return err
	}

	finder := discovery.New(
		[]discovery.Source{discovery.NewUSBSource(log), discovery.NewLANSource(log)},
		store,
		discovery.Options{Timeout: cfg.Discovery.Timeout, CacheTTL: cfg.Discovery.CacheTTL},
		log,
	)

	if discover {
		printers, err := finder.Printers(ctx, true)
		for _, p := range printers {
			fmt.Printf("%-10s %-28s %-24s %s\n", p.Type, p.ID, p.Address, p.Name)
		}
		return err
	}

	transports := transport.Default(log, transport.Options{
		WriteTimeout: cfg.Print.WriteTimeout,
		BaudRate:     cfg.Print.BaudRate,
	})
	svc := printer.NewService(store, transports,
		printer.WithLogger(log),
		printer.WithRetryPolicy(printer.RetryPolicy{Attempts: cfg.Print.RetryAttempts, Delay: cfg.Print.RetryDelay}),
		printer.WithQueueCapacity(cfg.Print.QueueCapacity),
		printer.WithMaxTextChars(cfg.Print.MaxTextChars),
		printer.WithCodePage(cfg.Print.CodePage),
	)
	defer svc.Close()

	if printText != "" || barcode != "" {
		if cfg.Discovery.Enabled {
			_, _ = finder.Printers(ctx, false)
		}
		return printOnce(ctx, svc, printText, barcode, preferred)
	}

	if cfg.Discovery.Enabled {
		go finder.LogStartupDiagnostics(ctx)
	}

	opts := []server.Option{
		server.WithLogger(log),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.Discovery.Enabled {
		opts = append(opts, server.WithDiscovery(finder))
	}
	srv := server.New(svc, store, cfg.Server.Address, opts...)
	if err := srv.StartAsync(); err != nil {
		return err
	}
	log.Info("print bridge ready", zap.String("address", srv.Address()))

	<-ctx.Done()
	log.Info("shutting down")
	return srv.Stop()
}

func printOnce(ctx context.Context, svc *printer.Service, text, barcode, preferred string) error {
	var blocks []escpos.Block
	if text != "" {
		blocks = append(blocks, escpos.Text{Lines: escpos.PlainLines(text)})
	}
	if barcode != "" {
		blocks = append(blocks, escpos.Barcode{Data: barcode, ModuleWidth: 3, ModuleHeight: 3})
	}

	kind, _ := transport.ParseKind(preferred)
	res := svc.PrintJob(ctx, printer.Job{Payload: blocks, Preferred: kind})
	fmt.Println(res.Message)
	if !res.Success {
		return fmt.Errorf("print failed")
	}
	return nil
}
