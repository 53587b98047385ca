package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/device/bluez"
)

// AdapterFactory creates the native backend.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(opts bluez.Options, logger *logrus.Logger) (device.Adapter, error) {
	a, err := bluez.New(opts, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewAdapter returns the native backend, or an adapter that reports Bluetooth as unavailable
// when the backend cannot be reached. It never returns nil.
func NewAdapter(opts bluez.Options, logger *logrus.Logger) device.Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	a, err := AdapterFactory(opts, logger)
	if err != nil {
		logger.WithError(err).Warn("Bluetooth backend unavailable")
		return device.Unavailable(err)
	}
	return a
}
