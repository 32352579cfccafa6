// Package plugins registers all built-in collaborators by blank-importing
// their packages; each one self-registers with pkg/plugin in its own init().
package plugins

import (
	_ "github.com/archivant/lexfetch/plugins/parser/academiclibrary"
	_ "github.com/archivant/lexfetch/plugins/parser/arbitration"
	_ "github.com/archivant/lexfetch/plugins/parser/gazette"
	_ "github.com/archivant/lexfetch/plugins/parser/supremecourt"

	_ "github.com/archivant/lexfetch/pkg/storage/filesystem"
	_ "github.com/archivant/lexfetch/pkg/storage/memory"
)
