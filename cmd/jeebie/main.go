package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/valerio/jeebie-core/jeebie"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/render"
	"github.com/valerio/jeebie-core/jeebie/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "Jeebie"
	app.Description = "A simple gameboy emulator"
	app.Usage = "jeebie [global options] command [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "rom",
			Usage:  "Path to the ROM file",
			EnvVar: "JEEBIE_ROM",
		},
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "Log level: debug, info, warn or error",
			Value:  "info",
			EnvVar: "JEEBIE_LOG_LEVEL",
		},
		cli.StringFlag{
			Name:   "boot-rom",
			Usage:  "Path to a 256 byte DMG boot ROM",
			EnvVar: "JEEBIE_BOOT_ROM",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Battery RAM file, loaded at start and written on exit",
		},
		cli.StringFlag{
			Name:  "load-state",
			Usage: "Save state to restore before running",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		{
			Name:      "info",
			Usage:     "Print the cartridge header",
			ArgsUsage: "<ROM file>",
			Action:    runInfo,
		},
		{
			Name:      "headless",
			Usage:     "Run without a display, optionally saving PNG snapshots",
			ArgsUsage: "<ROM file>",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "frames",
					Usage: "Number of frames to run (required)",
				},
				cli.IntFlag{
					Name:  "snapshot-interval",
					Usage: "Save a PNG snapshot every N frames (0 = disabled)",
				},
				cli.StringFlag{
					Name:  "snapshot-dir",
					Usage: "Directory to save frame snapshots (default: temp directory)",
				},
				cli.IntFlag{
					Name:  "scale",
					Usage: "Snapshot scale factor",
					Value: 2,
				},
				cli.BoolFlag{
					Name:  "ascii",
					Usage: "Print the last frame as text when done",
				},
			},
			Action: runHeadless,
		},
		{
			Name:      "run",
			Usage:     "Run in the terminal",
			ArgsUsage: "<ROM file>",
			Action:    runTerminal,
		},
		{
			Name:      "state",
			Usage:     "Run N frames and write a save state",
			ArgsUsage: "<ROM file>",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "frames",
					Usage: "Number of frames to run before saving",
				},
				cli.StringFlag{
					Name:  "out",
					Usage: "Output file for the save state",
				},
			},
			Action: runSaveState,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.GlobalString("log-level"))); err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func romPath(c *cli.Context) (string, error) {
	if path := c.GlobalString("rom"); path != "" {
		return path, nil
	}
	if c.NArg() > 0 {
		return c.Args().First(), nil
	}
	cli.ShowCommandHelp(c, c.Command.Name)
	return "", errors.New("no ROM path provided")
}

// openEmulator loads the ROM with the global options applied: boot ROM,
// battery file and save state.
func openEmulator(c *cli.Context) (*jeebie.DMG, error) {
	path, err := romPath(c)
	if err != nil {
		return nil, err
	}

	opts := []jeebie.Option{jeebie.WithLogger(slog.Default())}
	if bootPath := c.GlobalString("boot-rom"); bootPath != "" {
		boot, err := os.ReadFile(bootPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading boot rom")
		}
		opts = append(opts, jeebie.WithBootROM(boot))
	}

	emu, err := jeebie.NewWithFile(path, opts...)
	if err != nil {
		return nil, err
	}

	if savePath := c.GlobalString("save"); savePath != "" {
		data, err := os.ReadFile(savePath)
		switch {
		case os.IsNotExist(err):
			slog.Info("No battery file yet", "path", savePath)
		case err != nil:
			return nil, errors.Wrap(err, "reading battery file")
		default:
			if err := emu.LoadBatteryRAM(data); err != nil {
				return nil, err
			}
			slog.Info("Battery RAM loaded", "path", savePath, "bytes", len(data))
		}
	}

	if statePath := c.GlobalString("load-state"); statePath != "" {
		data, err := os.ReadFile(statePath)
		if err != nil {
			return nil, errors.Wrap(err, "reading save state")
		}
		if err := emu.LoadState(data); err != nil {
			return nil, err
		}
	}

	return emu, nil
}

// closeEmulator writes battery RAM back when --save is set.
func closeEmulator(c *cli.Context, emu *jeebie.DMG) error {
	savePath := c.GlobalString("save")
	ram := emu.BatteryRAM()
	if savePath == "" || ram == nil {
		return nil
	}
	if err := os.WriteFile(savePath, ram, 0o644); err != nil {
		return errors.Wrap(err, "writing battery file")
	}
	slog.Info("Battery RAM saved", "path", savePath, "bytes", len(ram))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runInfo(c *cli.Context) error {
	path, err := romPath(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading rom %s", path)
	}
	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return err
	}

	info := cart.Info()
	w := c.App.Writer
	fmt.Fprintf(w, "Title:           %s\n", info.Title)
	fmt.Fprintf(w, "Type:            0x%02X %s (%s, supported: %t)\n", info.TypeCode, info.TypeName, info.Kind, info.Supported)
	fmt.Fprintf(w, "ROM:             %d banks (code 0x%02X)\n", info.ROMBanks, info.ROMSizeCode)
	fmt.Fprintf(w, "RAM:             %d banks, %d bytes (code 0x%02X)\n", info.RAMBanks, info.RAMSize, info.RAMSizeCode)
	fmt.Fprintf(w, "Battery/Timer:   %t/%t\n", info.Battery, info.Timer)
	fmt.Fprintf(w, "CGB/SGB:         %t/%t\n", info.CGBSupported, info.SGBSupported)
	fmt.Fprintf(w, "Version:         %d\n", info.Version)
	fmt.Fprintf(w, "Header checksum: 0x%02X (valid: %t)\n", info.HeaderChecksum, info.ChecksumValid)
	fmt.Fprintf(w, "Global checksum: 0x%04X\n", info.GlobalChecksum)
	for _, warning := range cart.Warnings() {
		fmt.Fprintf(w, "Warning:         %s\n", warning)
	}
	return nil
}

func runHeadless(c *cli.Context) error {
	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("headless mode requires --frames option with a positive value")
	}

	emu, err := openEmulator(c)
	if err != nil {
		return err
	}

	snapshotInterval := c.Int("snapshot-interval")
	snapshotDir := c.String("snapshot-dir")
	if snapshotInterval > 0 && snapshotDir == "" {
		snapshotDir, err = os.MkdirTemp("", "jeebie-snapshots-*")
		if err != nil {
			return errors.Wrap(err, "failed to create snapshot directory")
		}
	}

	path, _ := romPath(c)
	romName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	ctx, stop := signalContext()
	defer stop()

	slog.Info("Running headless mode", "frames", frames, "snapshot_interval", snapshotInterval, "snapshot_dir", snapshotDir)

	limiter := timing.NewLimiter(false)
	defer limiter.Stop()

	for i := 1; i <= frames; i++ {
		if err := limiter.Wait(ctx); err != nil {
			slog.Info("Interrupted", "frame", i)
			break
		}
		frame := emu.RunOneFrame()

		if snapshotInterval > 0 && i%snapshotInterval == 0 {
			if _, err := render.SavePNG(snapshotDir, romName, frame, c.Int("scale")); err != nil {
				slog.Error("Failed to save snapshot", "frame", i, "error", err)
			}
		}
		if i%60 == 0 {
			slog.Debug("Frame progress", "completed", i, "total", frames)
		}
	}

	slog.Info("Headless execution completed", "status", emu.Status().String())
	for _, line := range emu.SerialOutput() {
		fmt.Fprintln(c.App.Writer, line)
	}
	if c.Bool("ascii") {
		for _, line := range render.FrameToHalfBlocks(emu.Frame()) {
			fmt.Fprintln(c.App.Writer, line)
		}
	}
	return closeEmulator(c, emu)
}

func runTerminal(c *cli.Context) error {
	emu, err := openEmulator(c)
	if err != nil {
		return err
	}

	limiter := timing.NewLimiter(true)
	defer limiter.Stop()

	term, err := render.NewTerminal(emu, limiter, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := term.Run(ctx); err != nil {
		return err
	}
	return closeEmulator(c, emu)
}

func runSaveState(c *cli.Context) error {
	out := c.String("out")
	if out == "" {
		return errors.New("state requires --out")
	}

	emu, err := openEmulator(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	done, err := emu.RunFrames(ctx, c.Int("frames"))
	if err != nil {
		return errors.Wrapf(err, "interrupted after %d frames", done)
	}

	data, err := emu.SaveState()
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return errors.Wrap(err, "writing save state")
	}
	slog.Info("State saved", "path", out, "bytes", len(data), "frames", done)
	return closeEmulator(c, emu)
}
