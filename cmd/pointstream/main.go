// Package main provides the CLI entry point for pointstream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"
	"golang.org/x/sync/errgroup"

	"github.com/user/pointstream/pkg/adapters/mp4source"
	"github.com/user/pointstream/pkg/config"
	"github.com/user/pointstream/pkg/pointstream"
	"github.com/user/pointstream/pkg/ports"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Start a session from a configuration file and report what a reader receives."`
	Probe   ProbeCmd   `cmd:"" help:"Inspect the video track of an MP4 file."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// RunCmd defines the run subcommand.
type RunCmd struct {
	Config   string        `short:"c" required:"" type:"existingfile" help:"YAML configuration file."`
	LogLevel string        `short:"l" enum:",debug,info,warn,error" default:"" help:"Log level, overriding log.level (debug, info, warn, error)."`
	Quiet    bool          `short:"Q" help:"Suppress all log output."`
	Interval time.Duration `default:"2s" help:"Interval between statistics reports."`
	Poll     time.Duration `default:"5ms" help:"Interval between reader polls."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	File string `arg:"" type:"existingfile" help:"MP4 file to inspect."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("pointstream"),
		kong.Description(l10n.T("Decode depth video streams into colored point clouds.")),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// readerStats counts what the polling reader saw.
type readerStats struct {
	reads  uint64
	points uint64
	aux    uint64
}

// Run executes the run command.
func (cmd *RunCmd) Run() error {
	cfg, err := config.LoadFromFile(cmd.Config)
	if err != nil {
		return err
	}
	if cmd.LogLevel != "" {
		cfg.Log.Level = cmd.LogLevel
	}
	if cmd.Quiet {
		cfg.Log.Level = ports.LevelQuiet.String()
	}
	base := pointstream.NewLogger(cfg.Log)
	log := base.WithComponent("cli")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := pointstream.Init(cfg, pointstream.WithLogger(base))
	if err != nil {
		return err
	}
	defer session.Close()

	var stats readerStats
	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return cmd.read(ctx, session, len(cfg.Decoders)+cfg.Aux.Channels, &stats)
	})
	g.Go(func() error {
		return cmd.watch(ctx, session, log)
	})

	err = g.Wait()
	if errors.Is(err, io.EOF) {
		log.Info("Replay finished")
		err = nil
	}
	if sigCtx.Err() != nil && err == nil {
		log.Warn("Interrupted, shutting down...")
	}
	log.Info("Read %d times, %d points, %d aux payloads", stats.reads, stats.points, stats.aux)
	return err
}

// read polls the session the way an embedding application would.
func (cmd *RunCmd) read(ctx context.Context, s *pointstream.Session, channels int, stats *readerStats) error {
	frames := make([]pointstream.Frame, channels)
	var pc pointstream.PointCloud

	ticker := time.NewTicker(cmd.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := s.BeginRead(frames, &pc)
		if errors.Is(err, pointstream.ErrNoData) {
			continue
		}
		if err != nil {
			return err
		}
		stats.reads++
		stats.points += uint64(pc.Used)
		for _, f := range frames {
			if f.Width == 0 && len(f.Planes[0]) > 0 {
				stats.aux++
			}
		}
		if err := s.EndRead(); err != nil {
			return err
		}
	}
}

// watch reports statistics and returns once the worker stops.
func (cmd *RunCmd) watch(ctx context.Context, s *pointstream.Session, log ports.Logger) error {
	ticker := time.NewTicker(cmd.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !s.Working() {
			return s.Err()
		}
		st := s.Stats()
		log.Info("Worker: %d iterations, %d timeouts, %d frames, %d clouds, audio %d written / %d dropped",
			st.Iterations, st.Timeouts, st.Frames, st.Clouds, st.AudioWritten, st.AudioDropped)
		ex := s.ExchangeStats()
		log.Info("Exchange: %d publishes, %d reads, %d frames and %d aux payloads replaced unread",
			ex.Publishes, ex.Reads, ex.FrameDrops, ex.AuxDrops)
	}
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	track, err := mp4source.ReadFile(cmd.File)
	if track == nil {
		return err
	}

	sync := 0
	for _, s := range track.Samples {
		if s.Sync {
			sync++
		}
	}
	fmt.Println(l10n.F("Codec: %s", track.Codec))
	fmt.Println(l10n.F("Size: %dx%d", track.Width, track.Height))
	fmt.Println(l10n.F("Fragmented: %t", track.Fragmented))
	fmt.Println(l10n.F("Samples: %d (%d sync)", len(track.Samples), sync))
	fmt.Println(l10n.F("Duration: %s", track.Duration()))
	if err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Cannot replay this file: %v", err))
	}
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("pointstream version %s", version))
	return nil
}
