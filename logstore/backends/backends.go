// Package backends imports all built-in log store backends for
// auto-registration. Import this package to have every backend registered
// with the default registry.
package backends

import (
	// Import all backends for side-effect registration
	_ "github.com/drblury/logcast/logstore/channel"
	_ "github.com/drblury/logcast/logstore/jetstream"
	_ "github.com/drblury/logcast/logstore/kafka"
)
