package dbg

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gni.dev/xbox/internal/config"
	"gni.dev/xbox/internal/dbg/debugger"
	"gni.dev/xbox/internal/dbg/term"
	"gni.dev/xbox/internal/dbg/xbdm"
	"gni.dev/xbox/internal/logging"
	"gni.dev/xbox/internal/metrics"
	"gni.dev/xbox/internal/mirror"
)

// env holds what every subcommand needs after its flags are parsed.
type env struct {
	cfg  config.Config
	log  *logging.Logger
	opts debugger.Options
	stop func()
}

type commonFlags struct {
	config   string
	addr     string
	logLevel string
	metrics  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "TOML config file")
	fs.StringVar(&c.addr, "addr", "", "console address (host[:port])")
	fs.StringVar(&c.logLevel, "log-level", "", "trace, debug, info, warn or error")
	fs.StringVar(&c.metrics, "metrics", "", "serve Prometheus metrics on this address")
}

func (c *commonFlags) setup() (*env, error) {
	cfg := config.Default()
	if c.config != "" {
		var err error
		if cfg, err = config.Load(c.config); err != nil {
			return nil, err
		}
	}
	if c.addr != "" {
		cfg.Address = c.addr
	}
	if c.metrics != "" {
		cfg.MetricsListen = c.metrics
	}

	lcfg := cfg.Logging()
	logging.ApplyEnv(&lcfg)
	if c.logLevel != "" {
		lvl, ok := logging.ParseLevel(c.logLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level '%s'", c.logLevel)
		}
		lcfg.Level = lvl
	}
	log := logging.New(os.Stderr, lcfg)

	e := &env{cfg: cfg, log: log, stop: func() {}}
	if cfg.MetricsListen == "" {
		e.opts = cfg.Options(log, nil)
		return e, nil
	}

	reg := prometheus.NewRegistry()
	obs, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: cfg.MetricsListen, Handler: metrics.Handler(reg)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Log(xbdm.LevelError, err, "metrics server on %s stopped", cfg.MetricsListen)
		}
	}()
	log.Log(xbdm.LevelInfo, nil, "serving metrics on %s", cfg.MetricsListen)
	e.stop = func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	e.opts = cfg.Options(log, obs)
	return e, nil
}

// address returns the configured console address, asking for one when
// stdin is a terminal.
func (e *env) address() (string, error) {
	if e.cfg.Address != "" {
		return e.cfg.Address, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", term.ErrNoAddress
	}
	return term.PromptAddress(os.Stdin, os.Stderr)
}

func (e *env) connect(ctx context.Context) (*debugger.Xbox, error) {
	addr, err := e.address()
	if err != nil {
		return nil, err
	}
	e.log.Log(xbdm.LevelInfo, nil, "connecting to %s", xbdm.NormalizeAddress(addr))
	return debugger.Connect(ctx, addr, e.opts)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func parse(name string, args []string, register func(fs *flag.FlagSet)) *env {
	var common commonFlags
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	common.register(fs)
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		fail(err)
	}
	e, err := common.setup()
	if err != nil {
		fail(err)
	}
	return e
}

func RunShell(args []string) {
	var argInit string
	e := parse("shell", args, func(fs *flag.FlagSet) {
		fs.StringVar(&argInit, "init", "", "initial command to run")
	})
	defer e.stop()

	if argInit == "" && e.cfg.Address != "" {
		argInit = "connect " + e.cfg.Address
	}

	st := setRawTerminal()
	defer st.Restore()

	screen := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	dial := func(ctx context.Context, address string) (*debugger.Xbox, error) {
		return debugger.Connect(ctx, address, e.opts)
	}
	t := term.New(screen, "(xbox) ", dial)
	if w, h, err := term.Size(int(os.Stdin.Fd())); err == nil {
		t.SetSize(w, h)
	}
	if err := t.Run(argInit); err != nil {
		st.Restore()
		fail(err)
	}
}

func RunInfo(args []string) {
	e := parse("info", args, nil)
	defer e.stop()

	x, err := e.connect(context.Background())
	if err != nil {
		fail(err)
	}
	defer x.Close()

	c := term.NewCommands(os.Stdout, nil)
	c.Attach(x)
	for _, line := range []string{"kernel", "modules", "threads", "drives"} {
		fmt.Printf("== %s\n", line)
		if err := c.Process(line); err != nil {
			fail(err)
		}
	}
}

func RunDump(args []string) {
	var out string
	e := parse("dump", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "xboxkrnl.bin", "output file")
	})
	defer e.stop()

	x, err := e.connect(context.Background())
	if err != nil {
		fail(err)
	}
	defer x.Close()

	k, err := x.Kernel()
	if err != nil {
		fail(err)
	}
	n, err := k.Dump(out)
	if err != nil {
		fail(err)
	}
	fmt.Printf("wrote %d bytes to %s\n", n, out)
}

func RunMirror(args []string) {
	var out, drive string
	e := parse("mirror", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "output directory (default ./<address>)")
		fs.StringVar(&drive, "drive", "", "mirror only this drive letter")
	})
	defer e.stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	addr, err := e.address()
	if err != nil {
		fail(err)
	}
	e.cfg.Address = addr
	if out == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fail(err)
		}
		out = filepath.Join(cwd, strings.ReplaceAll(addr, ":", "_"))
	}

	x, err := e.connect(ctx)
	if err != nil {
		fail(err)
	}
	defer x.Close()

	m := mirror.New(x.FileSystem(), out)
	var st mirror.Stats
	if drive != "" {
		st, err = m.Drive(ctx, strings.ToUpper(strings.TrimRight(drive, `:\`))+`:\`)
	} else {
		st, err = m.Run(ctx)
	}
	fmt.Printf("%d files, %d bytes copied, %d skipped, %d failed\n", st.Files, st.Bytes, st.Skipped, st.Failed)
	if err != nil {
		fail(err)
	}
}

func setRawTerminal() *term.State {
	if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin and stdout must be terminals")
		os.Exit(1)
	}

	st, err := term.TerminalMode(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get terminal mode:", err)
		os.Exit(1)
	}
	return st
}
