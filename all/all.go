// Package all imports every registry implementation used to look up declared
// licenses.
//
// Import this package for its side effects:
//
//	import (
//		"github.com/git-pkgs/licenses"
//		_ "github.com/git-pkgs/licenses/all"
//	)
//
//	ecosystems := licenses.SupportedEcosystems()
//	// ["cargo", "gem", "hex", "npm", "pub", "pypi"]
package all

import (
	_ "github.com/git-pkgs/licenses/internal/cargo"
	_ "github.com/git-pkgs/licenses/internal/hex"
	_ "github.com/git-pkgs/licenses/internal/npm"
	_ "github.com/git-pkgs/licenses/internal/pub"
	_ "github.com/git-pkgs/licenses/internal/pypi"
	_ "github.com/git-pkgs/licenses/internal/rubygems"
)
