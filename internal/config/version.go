package config

// Version is the tracksync binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/tracksync/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
