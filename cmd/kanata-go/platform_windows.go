//go:build windows

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/adapter"
	"github.com/kidandcat/kanata-go/internal/sink"
)

func openAdapters(log *logrus.Entry) []adapter.Adapter {
	return []adapter.Adapter{adapter.NewWindowsAdapter()}
}

func tryPlatformSink(log *logrus.Entry) sink.Sink { return nil }
