// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"github.com/specialistvlad/featuregrid/internal/registry"
	"github.com/specialistvlad/featuregrid/modules/csvexamplegen"
	"github.com/specialistvlad/featuregrid/modules/print"
	"github.com/specialistvlad/featuregrid/modules/s3export"
	"github.com/specialistvlad/featuregrid/modules/transform"
)

// coreModules is the definitive list of all component modules compiled into
// the featuregrid binary.
var coreModules = []registry.Module{
	&csvexamplegen.Module{},
	&transform.Module{},
	&s3export.Module{},
	&print.Module{},
}
