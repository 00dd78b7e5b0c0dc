// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/metadata"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
)

// fingerprint identifies an execution's inputs: the component's own
// configuration plus every upstream artifact it will read.
func fingerprint(c pipeline.Component, inputs map[string]pipeline.Outputs) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", c.Type(), c.ID(), c.Fingerprint())

	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		outs := inputs[id]
		names := make([]string, 0, len(outs))
		for name := range outs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(h, "%s\x00%s\x00%s\x00", id, name, outs[name])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// lookupCache returns the outputs of a previous successful execution with the
// same fingerprint, provided its local artifacts still exist.
func (e *Executor) lookupCache(ctx context.Context, c pipeline.Component, fp string) (pipeline.Outputs, bool, error) {
	_, artifacts, found, err := e.store.CachedExecution(ctx, e.pipeline.Name, c.ID(), fp)
	if err != nil || !found {
		return nil, false, err
	}

	outs := make(pipeline.Outputs, len(artifacts))
	for _, a := range artifacts {
		if isLocal(a.URI) {
			if _, err := os.Stat(a.URI); err != nil {
				ctxlog.FromContext(ctx).Debug("Cached artifact is gone, re-running component.", "artifact", a.Name, "uri", a.URI)
				return nil, false, nil
			}
		}
		outs[a.Name] = a.URI
	}
	return outs, true, nil
}

func isLocal(uri string) bool {
	return !strings.Contains(uri, "://")
}

func toArtifacts(outs pipeline.Outputs) []metadata.Artifact {
	artifacts := make([]metadata.Artifact, 0, len(outs))
	for name, uri := range outs {
		artifacts = append(artifacts, metadata.Artifact{Name: name, URI: uri})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts
}
