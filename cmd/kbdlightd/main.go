// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// kbdlightd is the keyboard lighting daemon: it exclusively owns the
// backlight device, renders the configured effect and reconciles the
// user's intent with lid/suspend/AC/idle power events.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lf-edge/kbdlight/backend"
	"github.com/lf-edge/kbdlight/backend/asusctl"
	"github.com/lf-edge/kbdlight/backend/ite8291"
	"github.com/lf-edge/kbdlight/backend/sysfsleds"
	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/config"
	"github.com/lf-edge/kbdlight/devicehandle"
	"github.com/lf-edge/kbdlight/effects"
	"github.com/lf-edge/kbdlight/power"
	"github.com/lf-edge/kbdlight/reconciler"
	"github.com/lf-edge/kbdlight/singleinst"
	"github.com/lf-edge/kbdlight/status"
	"github.com/lf-edge/kbdlight/types"
)

const agentName = "kbdlightd"

// Version is set from the Makefile.
var Version = "No version specified"

func main() {
	var (
		backendFlag   string
		configDirFlag string
		debugFlag     bool
		versionFlag   bool
	)

	rootCmd := &cobra.Command{
		Use:   agentName,
		Short: "per-key RGB keyboard lighting daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				fmt.Printf("%s: %s\n", os.Args[0], Version)
				return nil
			}
			os.Exit(run(backendFlag, configDirFlag, debugFlag))
			return nil
		},
	}
	rootCmd.Flags().StringVar(&backendFlag, "backend", "",
		"force a backend (ite8291, sysfs-leds, asusctl-aura) instead of auto")
	rootCmd.Flags().StringVar(&configDirFlag, "config-dir", "",
		"override the config directory")
	rootCmd.Flags().BoolVarP(&debugFlag, "debug", "d", false, "debug logging")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "print version")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(backendFlag, configDirFlag string, debug bool) int {
	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.TraceLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	log := base.NewLogObject(logger, agentName)
	log.Noticef("starting %s", agentName)

	configDir := configDirFlag
	if configDir == "" {
		configDir = config.Dir()
	}

	// One owner per device: a second instance exits cleanly.
	lock, acquired, err := singleinst.TryAcquire(log, configDir)
	if err != nil {
		log.Errorf("instance lock: %v", err)
		return 1
	}
	if !acquired {
		log.Noticef("another instance is running; exiting")
		return 0
	}
	defer lock.Release()

	config.LoadEnvFile(log, configDir)

	store, err := config.NewStore(log, configDir)
	if err != nil {
		log.Errorf("config store: %v", err)
		return 1
	}

	pub := status.NewPublisher(log)

	registry := backend.NewRegistry(log, []backend.Spec{
		{Name: "ite8291", Priority: 100, Factory: ite8291.New},
		{Name: "sysfs-leds", Priority: 80, Factory: sysfsleds.New},
		{Name: "asusctl-aura", Priority: 120, Factory: asusctl.New},
	})
	selection := registry.Select(backendFlag)
	if selection == nil {
		log.Noticef("no usable keyboard lighting backend found; exiting")
		return 0
	}
	caps := selection.Backend.Capabilities()
	pub.UpdateSnapshot(types.DiagSnapshot{
		Backend: selection.Backend.Name(),
		Probe:   selection.Probe,
		Caps:    caps,
	})

	dev, err := selection.Backend.OpenDevice()
	if err != nil {
		// Permission problems get the one-shot guidance; the daemon keeps
		// running and the poller retries the open.
		log.Warnf("open device: %v", err)
		pub.SetLastError(err)
		if types.IsPermissionDenied(err) {
			pub.PublishPermissionError(err)
		}
		dev = nil
	}
	handle := devicehandle.New(log, dev)
	defer handle.Close()

	keymap := effects.LoadKeymap(configDir)
	engine := effects.New(log, handle, caps, selection.Backend.HardwareEffects(),
		keymap, pub.PublishPermissionError)

	rec := reconciler.New(log, store, engine, pub)

	watcher := config.NewWatcher(log, store)
	defer watcher.Close()

	var suspend *power.SuspendObserver
	var acpi *power.AcpiObserver
	suspend, err = power.NewSuspendObserver(log)
	if err != nil {
		log.Warnf("login1 unavailable (%v), trying acpi_listen", err)
		acpi, err = power.NewAcpiObserver(log)
		if err != nil {
			log.Warnf("acpi_listen unavailable: %v; suspend events disabled", err)
		}
	}
	if suspend != nil {
		defer suspend.Close()
	}
	if acpi != nil {
		defer acpi.Close()
	}

	lid := power.NewLidObserver(log)
	if lid != nil {
		defer lid.Close()
	}

	ac := power.NewACObserver(log, store.Intent)
	defer ac.Close()

	idle := power.NewChannelIdleHook()

	hotplug, err := devicehandle.NewHotplugWatcher(log)
	if err != nil {
		log.Functionf("uevent watcher unavailable: %v", err)
		hotplug = nil
	} else {
		defer hotplug.Close()
	}

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Noticef("received %v, shutting down", sig)
		close(stop)
	}()

	runner := &reconciler.Runner{
		Reconciler: rec,
		Handle:     handle,
		Backend:    selection.Backend,
		Publisher:  pub,
		Watcher:    watcher,
		Lid:        lid,
		Suspend:    suspend,
		Acpi:       acpi,
		AC:         ac,
		Idle:       idle,
		Hotplug:    hotplug,
	}
	runner.Run(stop)

	engine.Stop()
	log.Noticef("%s stopped", agentName)
	return 0
}
