package main

// Autostart registers or removes a launch-at-login entry that starts
// kanata-go with a specific config file. Enable takes the absolute path the
// process was started with via -cfg: unlike a generic autostart target, an
// entry that launches without -cfg is useless, since kanata-go refuses to
// run without a compiled keymap (see main's "-cfg is required" check).
type Autostart interface {
	IsEnabled() bool
	Enable(cfgPath string) error
	Disable() error
}
