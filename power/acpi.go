// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"bufio"
	"io"
	"os/exec"
	"strings"

	"github.com/lf-edge/kbdlight/base"
)

// AcpiObserver is the lid fallback for systems without a usable D-Bus: it
// follows `acpi_listen` output for button/lid events.
type AcpiObserver struct {
	log    *base.LogObject
	cmd    *exec.Cmd
	events chan LidState
	stop   chan struct{}
}

// NewAcpiObserver spawns acpi_listen. Returns an error when the tool is not
// installed.
func NewAcpiObserver(log *base.LogObject) (*AcpiObserver, error) {
	cmd := exec.Command("acpi_listen")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	o := &AcpiObserver{
		log:    log,
		cmd:    cmd,
		events: make(chan LidState, 4),
		stop:   make(chan struct{}),
	}
	go o.run(stdout)
	log.Noticef("following acpi_listen for lid events")
	return o, nil
}

// Events is the subscription channel.
func (o *AcpiObserver) Events() <-chan LidState { return o.events }

// Close terminates the subprocess.
func (o *AcpiObserver) Close() {
	close(o.stop)
	_ = o.cmd.Process.Kill()
	_ = o.cmd.Wait()
}

// parseAcpiLidLine parses acpi_listen lines like
// "button/lid LID close" and "button/lid LID open".
func parseAcpiLidLine(line string) (LidState, bool) {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "button/lid") {
		return "", false
	}
	switch {
	case strings.Contains(lower, "close"):
		return LidClosed, true
	case strings.Contains(lower, "open"):
		return LidOpen, true
	}
	return "", false
}

func (o *AcpiObserver) run(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		select {
		case <-o.stop:
			return
		default:
		}
		state, ok := parseAcpiLidLine(scanner.Text())
		if !ok {
			continue
		}
		select {
		case o.events <- state:
		case <-o.stop:
			return
		}
	}
}
