package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accelgpx/internal/buttons"
	"accelgpx/internal/config"
	"accelgpx/internal/gps"
	"accelgpx/internal/motion"
	"accelgpx/internal/replay"
	"accelgpx/internal/session"
	"accelgpx/internal/tracker"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var recordPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tracker until interrupted",
		Long: "run opens the configured sensors and waits for start/stop/export requests " +
			"(buttons, SIGUSR1 for export). SIGINT/SIGTERM stop the session and export once.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, false)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runTracker(ctx, cfg, recordPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "also write accepted samples and fixes to this replay log")
	return cmd
}

func runTracker(ctx context.Context, cfg config.Config, recordPath string, out io.Writer) error {
	tcfg := trackerConfig(cfg)
	if recordPath != "" {
		w, err := replay.CreateWriter(recordPath)
		if err != nil {
			return fmt.Errorf("record log: %w", err)
		}
		defer logClose("record log", w)
		tcfg.Recorder = w
		log.Printf("recording path=%s", recordPath)
	}

	loc := newLocationSource(cfg)
	mot, motCloser, err := newMotionSource(cfg)
	if err != nil {
		return fmt.Errorf("motion init failed: %w", err)
	}
	if motCloser != nil {
		defer logClose("motion", motCloser)
	}

	svc, err := tracker.New(tcfg, loc, mot)
	if err != nil {
		return err
	}
	log.Printf("accelgpx starting version=%s export=%s alignment=%s", version, svc.Status().ExportPath, cfg.Export.Alignment)

	actions := make(chan buttons.Action, 8)
	if cfg.Buttons.Enable {
		w, err := buttons.Open(buttons.Config{
			StartPin:  cfg.Buttons.StartPin,
			StopPin:   cfg.Buttons.StopPin,
			ExportPin: cfg.Buttons.ExportPin,
			Debounce:  cfg.Buttons.Debounce,
		}, func(a buttons.Action) {
			select {
			case actions <- a:
			default:
				log.Printf("button action dropped action=%s", a)
			}
		})
		if err != nil {
			return fmt.Errorf("buttons init failed: %w", err)
		}
		defer logClose("buttons", w)
	}

	exportReq := make(chan os.Signal, 1)
	if len(exportSignals) > 0 {
		signal.Notify(exportReq, exportSignals...)
		defer signal.Stop(exportReq)
	}

	if cfg.Session.Autostart {
		handleAction(ctx, svc, buttons.ActionStart, out)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.RunMotion(ctx); err != nil {
			log.Printf("motion stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Printf("accelgpx stopping")
			if err := svc.Stop(); err != nil {
				log.Printf("stop: %v", err)
			}
			wg.Wait()
			logSourceStats(loc, mot)

			var exportErr error
			if svc.Status().SessionID != "" {
				exportCtx, cancel := context.WithTimeout(context.Background(), cfg.Export.Timeout)
				exportErr = exportAndReport(exportCtx, svc, out)
				cancel()
			}
			return exportErr
		case a := <-actions:
			handleAction(ctx, svc, a, out)
		case <-exportReq:
			handleAction(ctx, svc, buttons.ActionExport, out)
		}
	}
}

// handleAction runs on the control loop only, so Start/Stop/Export never
// overlap.
func handleAction(ctx context.Context, svc *tracker.Service, a buttons.Action, out io.Writer) {
	switch a {
	case buttons.ActionStart:
		err := svc.Start(ctx)
		switch {
		case errors.Is(err, session.ErrPermissionDenied):
			log.Printf("start refused: location permission denied: %v", err)
		case err != nil:
			log.Printf("start failed: %v", err)
		}
	case buttons.ActionStop:
		if err := svc.Stop(); err != nil {
			log.Printf("stop: %v", err)
		}
	case buttons.ActionExport:
		_ = exportAndReport(ctx, svc, out)
	}
}

func exportAndReport(ctx context.Context, svc *tracker.Service, out io.Writer) error {
	sum, err := svc.Export(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "wrote %s points=%d dropped_accels=%d dropped_fixes=%d\n",
		sum.Path, sum.Points, sum.DroppedAccels, sum.DroppedFixes)
	return err
}

// logClose closes c and logs a failure; shutdown continues either way.
func logClose(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("%s close failed: %v", what, err)
	}
}

func logSourceStats(loc session.LocationSource, mot tracker.MotionSource) {
	if g, ok := loc.(*gps.Service); ok {
		s := g.Snapshot()
		log.Printf("gps stats source=%s device=%s fixes=%d last_fix=%s last_error=%q", s.Source, s.Device, s.Fixes, s.LastFixUTC, s.LastError)
	}
	if p, ok := mot.(*motion.Poller); ok {
		s := p.Snapshot()
		log.Printf("motion stats samples=%d errors=%d last_error=%q", s.Samples, s.Errors, s.LastError)
	}
}
