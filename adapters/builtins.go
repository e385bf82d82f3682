package adapters

import "github.com/brettbedarf/remotefs/config"

// NOTE: If build bloat becomes a concern for unused backends look into build
// tags or nested packages that register themselves from init()

// RegisterBuiltins registers all built-in backends on r by default, or only the
// specific ones if types are provided
func RegisterBuiltins(r *Registry, types ...string) {
	if len(types) == 0 {
		types = []string{config.BackendGDrive, config.BackendSFTP, config.BackendS3}
	}

	for _, t := range types {
		switch t {
		case config.BackendGDrive:
			r.Register(t, ProviderFunc(OpenDrive))
		case config.BackendSFTP:
			r.Register(t, ProviderFunc(OpenSFTP))
		case config.BackendS3:
			r.Register(t, ProviderFunc(OpenS3))
		}
	}
}
