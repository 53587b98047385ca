package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/groutine"
	"github.com/srg/btclassic/internal/metrics"
	"github.com/srg/btclassic/internal/ringchan"
)

// ErrScanInProgress is returned when a blocking scan is requested while discovery runs.
var ErrScanInProgress = errors.New("discovery already in progress")

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device device.Info
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration  time.Duration // 0 runs until stopped
	AllowList []string
	BlockList []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{Duration: 8 * time.Second}
}

// Scanner runs Bluetooth Classic inquiry. Only one discovery runs at a time.
type Scanner struct {
	adapter device.Adapter
	logger  *logrus.Logger

	known  cmap.ConcurrentMap[string, device.Info] // every device seen by this scanner
	events *ringchan.Ring[DeviceEvent]

	discovering atomic.Bool
	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScanner creates a scanner using adapter
func NewScanner(adapter device.Adapter, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		adapter: adapter,
		logger:  logger,
		known:   cmap.New[device.Info](),
		events:  ringchan.New[DeviceEvent](100),
	}
}

// WithMetrics counts events discarded from the Events ring. Call before discovery starts.
func (s *Scanner) WithMetrics(m *metrics.Metrics) *Scanner {
	s.events.OnDrop(func() { m.EventDropped("scanner") })
	return s
}

// Events delivers discovery events. Old events are dropped when nobody reads.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Scan performs discovery for opts.Duration and returns the devices found, sorted by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.Info, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	if !s.discovering.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.discovering.Store(false)

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting discovery...")
	progressCallback("Scanning")

	found, err := s.run(ctx, opts)
	if err != nil {
		return nil, err
	}

	progressCallback("Processing results")
	devices := snapshot(found)
	s.logger.WithField("device_count", len(devices)).Info("Discovery completed")
	return devices, nil
}

// Start begins discovery in the background. Starting while discovery runs is a no-op.
// Fails when the controller is missing or powered off.
func (s *Scanner) Start(ctx context.Context, opts *ScanOptions) error {
	if opts == nil {
		opts = &ScanOptions{}
	}
	state, err := s.adapter.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to read adapter state: %w", err)
	}
	if !state.Present {
		return &device.NotFoundError{Resource: "adapter"}
	}
	if !state.Powered {
		return device.ErrBluetoothOff
	}

	// cancel and done must be visible to Stop as soon as discovering is.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.discovering.CompareAndSwap(false, true) {
		return nil
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Duration > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), opts.Duration)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	groutine.Go(runCtx, "discovery", func(ctx context.Context) {
		defer close(done)
		defer s.discovering.Store(false)
		defer cancel()
		if _, err := s.run(ctx, opts); err != nil {
			s.logger.WithError(err).Warn("Discovery failed")
		}
	})
	return nil
}

// Stop ends background discovery and waits for it to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsDiscovering reports whether discovery is running.
func (s *Scanner) IsDiscovering() bool {
	return s.discovering.Load()
}

// Devices returns every device seen by this scanner, sorted by address.
func (s *Scanner) Devices() []device.Info {
	devs := make([]device.Info, 0, s.known.Count())
	for _, d := range s.known.Items() {
		devs = append(devs, d)
	}
	sortInfos(devs)
	return devs
}

// run drives one discovery until ctx is done and returns the devices it saw
func (s *Scanner) run(ctx context.Context, opts *ScanOptions) (*hashmap.Map[string, device.Info], error) {
	found := hashmap.New[string, device.Info]()

	err := s.adapter.Discover(ctx, func(info device.Info) {
		s.handleDevice(found, info, opts)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	return found, nil
}

// handleDevice updates existing or adds a new device
func (s *Scanner) handleDevice(found *hashmap.Map[string, device.Info], info device.Info, opts *ScanOptions) {
	if !shouldIncludeDevice(info.Address, opts) {
		return
	}
	info.Type = device.TypeClassic

	_, existing := found.Get(info.Address)
	found.Set(info.Address, info)
	s.known.Set(info.Address, info)

	event := DeviceEvent{Type: EventUpdated, Device: info}
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  info.Name,
			"address": info.Address,
		}).Info("Discovered new device")
		event.Type = EventNew
	}
	s.events.Send(event)
}

// shouldIncludeDevice applies the allow and block lists
func shouldIncludeDevice(addr string, opts *ScanOptions) bool {
	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}
	if len(opts.AllowList) == 0 {
		return true
	}
	for _, a := range opts.AllowList {
		if addr == a {
			return true
		}
	}
	return false
}

func snapshot(m *hashmap.Map[string, device.Info]) []device.Info {
	devs := make([]device.Info, 0, m.Len())
	m.Range(func(_ string, value device.Info) bool {
		devs = append(devs, value)
		return true
	})
	sortInfos(devs)
	return devs
}

func sortInfos(devs []device.Info) {
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
}
