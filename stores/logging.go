// Package stores provides the quarry store implementations: in-process and
// SQLite-backed leaf stores, the filesystem reconciliation store, and the
// composite stores (aliasing, sandbox, joint, concat) that combine them.
package stores

import (
	"os"

	"github.com/rs/zerolog"
)

// defaultLogger is used by stores constructed without an explicit logger.
var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// SetDefaultLogger replaces the package-wide logger used by stores that
// were not given one of their own.
func SetDefaultLogger(l zerolog.Logger) {
	defaultLogger = l
}
