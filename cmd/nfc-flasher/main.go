package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openstickers/nfc-flasher/internal/api"
	"github.com/openstickers/nfc-flasher/internal/config"
	"github.com/openstickers/nfc-flasher/internal/flasher"
	"github.com/openstickers/nfc-flasher/internal/journal"
	"github.com/openstickers/nfc-flasher/internal/logging"
	"github.com/openstickers/nfc-flasher/internal/settings"
	"github.com/openstickers/nfc-flasher/internal/tag"
	"github.com/openstickers/nfc-flasher/internal/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, "NFC Flasher - write UID-stamped URLs to Type 2 tags\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  nfc-flasher write <url> [flags]\n")
	fmt.Fprintf(os.Stderr, "  nfc-flasher read [-clipboard] [flags]\n")
	fmt.Fprintf(os.Stderr, "  nfc-flasher serve [-addr host:port] [flags]\n")
	fmt.Fprintf(os.Stderr, "  nfc-flasher version\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -debug            Enable debug logging\n")
	fmt.Fprintf(os.Stderr, "  -reader <name>    Use a specific PC/SC reader\n\n")
	fmt.Fprintf(os.Stderr, "Environment variables:\n")
	fmt.Fprintf(os.Stderr, "  NFC_FLASHER_HOST           Serve-mode host (default: %s)\n", config.DefaultHost)
	fmt.Fprintf(os.Stderr, "  NFC_FLASHER_PORT           Serve-mode port (default: %d)\n", config.DefaultPort)
	fmt.Fprintf(os.Stderr, "  NFC_FLASHER_READER         Reader name (default: first available)\n")
	fmt.Fprintf(os.Stderr, "  NFC_FLASHER_POLL_INTERVAL  Presence poll interval (default: %s)\n", config.DefaultPollInterval)
	fmt.Fprintf(os.Stderr, "  NFC_FLASHER_JOURNAL        Scan journal path\n")
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version information and exit")
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		printVersion()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "version":
		printVersion()
	case "write":
		os.Exit(runWrite(args[1:]))
	case "read":
		os.Exit(runRead(args[1:]))
	case "serve":
		os.Exit(runServe(args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(2)
	}
}

func printVersion() {
	fmt.Printf("nfc-flasher %s\n", api.Version)
	fmt.Printf("Build time: %s\n", api.BuildTime)
	fmt.Printf("Git commit: %s\n", api.GitCommit)
}

// commonFlags registers the flags shared by every mode.
func commonFlags(fs *flag.FlagSet) (debug *bool, reader *string) {
	debug = fs.Bool("debug", false, "Enable debug logging")
	reader = fs.String("reader", "", "Use a specific PC/SC reader")
	return
}

// setup initializes logging, crash reporting and the PC/SC context, and
// resolves the reader to watch. Reader absence at startup is fatal.
func setup(debug bool, readerFlag string) (*config.Config, transport.Context, string, error) {
	logging.Init(1000, logging.LevelInfo)
	if debug {
		logging.SetLevel(logging.LevelDebug)
	}
	logging.InitSentry(api.Version, settings.IsCrashReportingEnabled())

	cfg := config.Load()

	factory := transport.PCSCFactory{}
	tctx, err := factory.Establish()
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", transport.ErrNoReader, err)
	}

	reader := readerFlag
	if reader == "" {
		reader = cfg.Reader
	}
	if reader == "" {
		readers, err := tctx.ListReaders()
		if err != nil || len(readers) == 0 {
			tctx.Release()
			if err == nil {
				err = errors.New("no readers attached")
			}
			return nil, nil, "", fmt.Errorf("%w: %v", transport.ErrNoReader, err)
		}
		reader = readers[0]
	}

	logging.Info(logging.CatReader, "Using reader", map[string]any{
		"reader": reader,
	})
	return cfg, tctx, reader, nil
}

func openJournal(cfg *config.Config) *journal.Journal {
	path, err := cfg.JournalFile()
	if err != nil {
		logging.Warn(logging.CatSystem, "Scan journal disabled", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	j, err := journal.Open(path)
	if err != nil {
		logging.Warn(logging.CatSystem, "Scan journal disabled", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	return j
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// listenPort extracts the port to announce over mDNS from the resolved
// listen address, falling back when the address cannot be parsed.
func listenPort(addr string, fallback int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return fallback
	}
	return p
}

func runWrite(args []string) int {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	debug, reader := commonFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 || fs.Arg(0) == "" {
		fmt.Fprintln(os.Stderr, "write: exactly one URL argument required")
		usage()
		return 2
	}
	url := fs.Arg(0)

	cfg, tctx, readerName, err := setup(*debug, *reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfc-flasher: %v\n", err)
		return 1
	}
	defer tctx.Release()
	defer logging.FlushSentry(2 * time.Second)

	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	f := flasher.New(tag.NewMonitor(tctx, readerName, cfg.PollInterval), flasher.Options{
		URL:     url,
		Journal: j,
		Out:     os.Stdout,
	})
	f.Flash(ctx)
	fmt.Fprintf(os.Stderr, "%d tag(s) flashed\n", f.Scans())
	return 0
}

func runRead(args []string) int {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	debug, reader := commonFlags(fs)
	clip := fs.Bool("clipboard", false, "Copy each recovered URL to the clipboard")
	fs.Parse(args)

	cfg, tctx, readerName, err := setup(*debug, *reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfc-flasher: %v\n", err)
		return 1
	}
	defer tctx.Release()
	defer logging.FlushSentry(2 * time.Second)

	j := openJournal(cfg)
	if j != nil {
		defer j.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	f := flasher.New(tag.NewMonitor(tctx, readerName, cfg.PollInterval), flasher.Options{
		Clipboard: *clip || settings.Get().CopyToClipboard,
		Journal:   j,
		Out:       os.Stdout,
	})
	f.Read(ctx)
	fmt.Fprintf(os.Stderr, "%d tag(s) read\n", f.Scans())
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	debug, reader := commonFlags(fs)
	addr := fs.String("addr", "", "Listen address (default from NFC_FLASHER_HOST/PORT)")
	fs.Parse(args)

	cfg, tctx, readerName, err := setup(*debug, *reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfc-flasher: %v\n", err)
		return 1
	}
	defer tctx.Release()
	defer logging.FlushSentry(2 * time.Second)

	listenAddr := cfg.Address()
	if *addr != "" {
		listenAddr = *addr
	}

	journalPath, err := cfg.JournalFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfc-flasher: %v\n", err)
		return 1
	}
	j, err := journal.Open(journalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfc-flasher: %v\n", err)
		return 1
	}
	defer j.Close()

	hub := api.NewWSHub()
	go hub.Run()

	server := api.NewServer(tctx, hub, journalPath)
	httpServer := &http.Server{Addr: listenAddr, Handler: server.NewMux()}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		defer logging.RecoverAndLog("HTTP server", false)
		logging.Info(logging.CatSystem, "Server started", map[string]any{
			"address": listenAddr,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(logging.CatSystem, "Server error", map[string]any{
				"error": err.Error(),
			})
			logging.CaptureError(err, "http server", map[string]any{
				"address": listenAddr,
			})
			cancel()
		}
	}()

	if mdns, err := api.Announce(listenPort(listenAddr, cfg.Port)); err != nil {
		logging.Warn(logging.CatSystem, "mDNS announcement failed", map[string]any{
			"error": err.Error(),
		})
	} else {
		defer mdns.Shutdown()
	}

	f := flasher.New(tag.NewMonitor(tctx, readerName, cfg.PollInterval), flasher.Options{
		Clipboard: settings.Get().CopyToClipboard,
		Journal:   j,
		Hub:       hub,
		Out:       os.Stdout,
	})
	f.Read(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	fmt.Fprintf(os.Stderr, "%d tag(s) read\n", f.Scans())
	return 0
}
