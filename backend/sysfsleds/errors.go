// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package sysfsleds

import "errors"

var errNoLed = errors.New("no keyboard backlight LED found")
