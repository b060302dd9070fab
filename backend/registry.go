// Copyright (c) 2024-2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/lf-edge/kbdlight/base"
	"github.com/lf-edge/kbdlight/types"
)

// Spec lazily constructs one backend. Construction must be cheap; anything
// expensive belongs in Probe.
type Spec struct {
	Name     string
	Priority int
	Factory  func(log *base.LogObject) KeyboardBackend
}

// Selection is the outcome of a successful backend selection.
type Selection struct {
	Backend KeyboardBackend
	Probe   types.ProbeResult
}

// Registry enumerates backend specs and selects the best available one.
type Registry struct {
	specs []Spec
	log   *base.LogObject
}

// NewRegistry creates a registry over the given specs.
func NewRegistry(log *base.LogObject, specs []Spec) *Registry {
	return &Registry{specs: specs, log: log}
}

// safeProbe runs a probe, converting panics and degenerate results into an
// unavailable ProbeResult so one broken backend cannot take down selection.
func (r *Registry) safeProbe(b KeyboardBackend) (result types.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warnf("backend %s probe panicked: %v", b.Name(), rec)
			result = types.ProbeResult{
				Available:  false,
				Reason:     fmt.Sprintf("probe panic: %v", rec),
				Confidence: 0,
			}
		}
	}()
	result = b.Probe()
	if !result.Available {
		result.Confidence = 0
	}
	return result
}

// Select picks one backend. Order of precedence: the requested argument, the
// KBDLIGHT_BACKEND environment variable, then auto selection by highest
// confidence with priority as tie-breaker. Returns nil when nothing usable
// is present.
func (r *Registry) Select(requested string) *Selection {
	req := strings.ToLower(strings.TrimSpace(requested))
	if req == "" {
		req = strings.ToLower(strings.TrimSpace(os.Getenv(EnvBackend)))
	}
	if req == "" {
		req = "auto"
	}

	backends := make([]KeyboardBackend, 0, len(r.specs))
	for _, spec := range r.specs {
		backends = append(backends, spec.Factory(r.log))
	}

	if req != "auto" {
		for _, b := range backends {
			if strings.ToLower(b.Name()) != req {
				continue
			}
			result := r.safeProbe(b)
			if !result.Available {
				r.log.Noticef("backend %s requested but unavailable: %s",
					b.Name(), result.Reason)
				return nil
			}
			r.log.Noticef("backend %s selected (requested)", b.Name())
			return &Selection{Backend: b, Probe: result}
		}
		r.log.Warnf("requested backend %q is not known", req)
		return nil
	}

	type candidate struct {
		backend KeyboardBackend
		probe   types.ProbeResult
	}
	var candidates []candidate
	for _, b := range backends {
		result := r.safeProbe(b)
		r.log.Functionf("backend probe: %s available=%t confidence=%d reason=%s",
			b.Name(), result.Available, result.Confidence, result.Reason)
		if result.Available {
			candidates = append(candidates, candidate{backend: b, probe: result})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Highest confidence wins; priority is the tie-breaker.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].probe.Confidence != candidates[j].probe.Confidence {
			return candidates[i].probe.Confidence > candidates[j].probe.Confidence
		}
		return candidates[i].backend.Priority() > candidates[j].backend.Priority()
	})
	chosen := candidates[0]
	r.log.Noticef("backend %s selected (confidence=%d priority=%d)",
		chosen.backend.Name(), chosen.probe.Confidence, chosen.backend.Priority())
	return &Selection{Backend: chosen.backend, Probe: chosen.probe}
}
