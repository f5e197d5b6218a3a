//go:build linux

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/adapter"
	"github.com/kidandcat/kanata-go/internal/sink"
)

func openAdapters(log *logrus.Entry) []adapter.Adapter {
	return []adapter.Adapter{adapter.NewLinuxAdapter(log)}
}

// tryPlatformSink prefers a real uinput virtual keyboard over the
// accessibility-API-based RobotgoSink (spec.md §4.7): it survives Wayland
// compositors that block synthetic input from userspace accessibility
// APIs. Returns nil (falling back to RobotgoSink) if -no-uinput was passed
// or /dev/uinput can't be opened.
func tryPlatformSink(log *logrus.Entry) sink.Sink {
	if *flagNoUinput {
		return nil
	}
	s, err := sink.NewUinputSink(log, *flagUinputTemplate)
	if err != nil {
		log.WithError(err).Warn("kanata-go: uinput sink unavailable, falling back to the accessibility-API sink")
		return nil
	}
	return s
}
