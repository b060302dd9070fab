// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-envparse"

	"github.com/lf-edge/kbdlight/base"
)

// EnvFile overrides the path of the optional daemon environment file.
const EnvFile = "KBDLIGHT_ENV_FILE"

// envFileName inside the config directory.
const envFileName = "environment"

// LoadEnvFile reads an optional KEY=VALUE environment file and exports its
// KBDLIGHT_* entries into the process environment, without overriding
// variables already set by the session. This lets desktop users configure
// backend selection and zone layout without editing systemd units.
func LoadEnvFile(log *base.LogObject, configDir string) {
	path := os.Getenv(EnvFile)
	if path == "" {
		path = filepath.Join(configDir, envFileName)
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	env, err := envparse.Parse(f)
	if err != nil {
		log.Warnf("environment file %s unparseable: %v", path, err)
		return
	}
	for key, value := range env {
		if !strings.HasPrefix(key, "KBDLIGHT_") {
			continue
		}
		if _, present := os.LookupEnv(key); present {
			continue
		}
		_ = os.Setenv(key, value)
		log.Functionf("environment file: %s=%s", key, value)
	}
}
