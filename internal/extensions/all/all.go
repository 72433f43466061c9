// Package all links every in-tree extension module into the binary. Each
// imported package registers its module factory and discovery provider from
// init().
package all

import (
	_ "github.com/moolen/hearth/internal/extensions/metadata"
	_ "github.com/moolen/hearth/internal/extensions/timer"
)
