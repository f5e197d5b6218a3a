// Command kanata-go remaps a physical keyboard through the layered
// key-processing engine in internal/engine, driven by a config file written
// in internal/config's s-expression surface.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/config"
	"github.com/kidandcat/kanata-go/internal/control"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/orchestrator"
	"github.com/kidandcat/kanata-go/internal/sink"
	"github.com/kidandcat/kanata-go/internal/transport"
)

var (
	flagCfg            = flag.String("cfg", "", "path to the keymap config file")
	flagTransportSock  = flag.String("transport-socket", defaultSocketPath(), "unix socket path for the control channel")
	flagListLayers     = flag.Bool("list-layers", false, "compile -cfg, print its layer names, and exit")
	flagNoUinput       = flag.Bool("no-uinput", false, "skip the Linux uinput sink and use the cross-platform sink instead")
	flagUinputTemplate = flag.String("uinput-template", "/dev/input/event0", "a real keyboard device to clone capabilities from (linux uinput sink only)")
	flagSetAutostart   = flag.String("autostart", "", "set to \"on\" or \"off\" to (un)register launch-at-login and exit")
)

func defaultSocketPath() string {
	dir := os.TempDir()
	if rd := os.Getenv("XDG_RUNTIME_DIR"); rd != "" {
		dir = rd
	}
	return filepath.Join(dir, "kanata-go.sock")
}

func main() {
	flag.Parse()
	log := newLogger()

	if *flagSetAutostart != "" {
		applyAutostart(log, *flagSetAutostart, *flagCfg)
		return
	}

	if *flagCfg == "" {
		fmt.Fprintln(os.Stderr, "kanata-go: -cfg is required")
		os.Exit(2)
	}
	data, err := os.ReadFile(*flagCfg)
	if err != nil {
		log.WithError(err).Fatal("kanata-go: read config")
	}
	km, err := config.Compile(string(data))
	if err != nil {
		log.WithError(err).Fatal("kanata-go: compile config")
	}

	if *flagListLayers {
		for _, name := range km.LayerNames() {
			fmt.Println(name)
		}
		return
	}

	out := openSink(log)
	adapters := openAdapters(log)
	if len(adapters) == 0 {
		log.Fatal("kanata-go: no input adapter available; try running as root or adding this user to the 'input' group")
	}

	orch := orchestrator.New(log, km, adapters, out)
	if err := orch.Run(); err != nil {
		log.WithError(err).Fatal("kanata-go: start orchestrator")
	}

	srv := transport.NewServer(log, *flagTransportSock, orch)
	if err := srv.Start(); err != nil {
		log.WithError(err).Warn("kanata-go: control channel unavailable")
	} else {
		log.WithField("socket", *flagTransportSock).Info("kanata-go: control channel listening")
	}

	watcher, err := startConfigWatcher(log, *flagCfg, orch)
	if err != nil {
		log.WithError(err).Warn("kanata-go: config file watcher unavailable, reload-on-edit disabled")
	}

	go runSystray(log, orch, *flagCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("kanata-go: shutting down")
	if watcher != nil {
		watcher.Close()
	}
	srv.Stop()
	orch.Stop()
	systray.Quit()
}

func applyAutostart(log *logrus.Entry, mode, cfgPath string) {
	a := NewAutostart()
	switch mode {
	case "on":
		if cfgPath == "" {
			fmt.Fprintln(os.Stderr, "kanata-go: -autostart on requires -cfg, so the registered entry launches with a keymap")
			os.Exit(2)
		}
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			log.WithError(err).Fatal("kanata-go: resolve -cfg path")
		}
		if err := a.Enable(abs); err != nil {
			log.WithError(err).Fatal("kanata-go: enable autostart")
		}
	case "off":
		if err := a.Disable(); err != nil {
			log.WithError(err).Fatal("kanata-go: disable autostart")
		}
	default:
		fmt.Fprintf(os.Stderr, "kanata-go: -autostart wants \"on\" or \"off\", got %q\n", mode)
		os.Exit(2)
	}
}

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(l)
}

func startConfigWatcher(log *logrus.Entry, path string, orch *orchestrator.Orchestrator) (*config.Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := config.NewWatcher(log, abs, func(km *keymap.Keymap) {
		if err := orch.RequestReload(km); err != nil {
			log.WithError(err).Warn("kanata-go: reload request rejected")
		}
	}, func(err error) {
		log.WithError(err).Warn("kanata-go: config watch error")
	})
	if err != nil {
		return nil, err
	}
	if err := w.Run(filepath.Dir(abs)); err != nil {
		return nil, err
	}
	return w, nil
}

func runSystray(log *logrus.Entry, orch *orchestrator.Orchestrator, cfgPath string) {
	systray.Run(func() { onReady(log, orch, cfgPath) }, func() {})
}

// reloadFromDisk re-reads and recompiles cfgPath and pushes the result to
// orch. Selecting which config file "reload" means is a cmd/kanata-go
// concern (spec.md §6): the core only accepts an already-resolved Keymap.
func reloadFromDisk(log *logrus.Entry, orch *orchestrator.Orchestrator, cfgPath string) error {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}
	km, err := config.Compile(string(data))
	if err != nil {
		return err
	}
	return orch.RequestReload(km)
}

func onReady(log *logrus.Entry, orch *orchestrator.Orchestrator, cfgPath string) {
	systray.SetTitle("kbd")
	systray.SetTooltip("kanata-go")

	mLayer := systray.AddMenuItem("layer: ...", "Current active layer")
	mLayer.Disable()
	systray.AddSeparator()
	mReload := systray.AddMenuItem("Reload config", "Recompile and apply the config file")
	mQuit := systray.AddMenuItem("Quit", "Quit kanata-go")

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			resp := orch.Submit(control.RequestCurrentLayerName{})
			if resp.Ok {
				mLayer.SetTitle("layer: " + resp.Name)
			}
		}
	}()

	go func() {
		for {
			select {
			case <-mReload.ClickedCh:
				if err := reloadFromDisk(log, orch, cfgPath); err != nil {
					log.WithError(err).Warn("kanata-go: manual reload failed")
				}
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func openSink(log *logrus.Entry) sink.Sink {
	if s := tryPlatformSink(log); s != nil {
		return s
	}
	return sink.NewRobotgoSink(log)
}
