//go:build darwin

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DarwinAutostart registers a LaunchAgent plist whose ProgramArguments carry
// the exact config file Enable was given.
type DarwinAutostart struct{}

// NewAutostart creates a new autostart handler for macOS.
func NewAutostart() Autostart {
	return &DarwinAutostart{}
}

func (a *DarwinAutostart) getLaunchAgentPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", "com.kanata-go.app.plist")
}

func (a *DarwinAutostart) getAppPath() string {
	exe, _ := os.Executable()
	if idx := strings.Index(exe, ".app/"); idx != -1 {
		return exe[:idx+4]
	}
	return exe
}

func (a *DarwinAutostart) IsEnabled() bool {
	_, err := os.Stat(a.getLaunchAgentPath())
	return err == nil
}

func (a *DarwinAutostart) Enable(cfgPath string) error {
	appPath := a.getAppPath()
	var plist string

	if strings.HasSuffix(appPath, ".app") {
		// `open -a` alone can't forward -cfg to the launched binary; --args
		// does, and -n ensures a fresh instance runs with our arguments
		// instead of re-activating whatever instance is already running.
		plist = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.kanata-go.app</string>
    <key>ProgramArguments</key>
    <array>
        <string>/usr/bin/open</string>
        <string>-n</string>
        <string>-a</string>
        <string>%s</string>
        <string>--args</string>
        <string>-cfg</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>`, appPath, cfgPath)
	} else {
		plist = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.kanata-go.app</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>-cfg</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>`, appPath, cfgPath)
	}

	return os.WriteFile(a.getLaunchAgentPath(), []byte(plist), 0644)
}

func (a *DarwinAutostart) Disable() error {
	return os.Remove(a.getLaunchAgentPath())
}
