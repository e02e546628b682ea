package capture

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/mortenfc/rewind/internal/audio"
)

// Backend abstracts the audio host API so the manager can be tested
// without hardware.
type Backend interface {
	// InitDevice prepares a mono capture device delivering PCM in the
	// given format to onRecv. The callback runs on the backend's realtime
	// thread and must not block.
	InitDevice(cfg audio.Config, onRecv func(pcm []byte)) (Device, error)

	// Uninit releases the backend.
	Uninit() error
}

// Device is an initialized capture device.
type Device interface {
	Start() error
	Stop() error
	Uninit()
}

// malgoBackend adapts a malgo context to the Backend interface.
type malgoBackend struct {
	ctx        *malgo.AllocatedContext
	deviceName string
	periodMs   int
	logger     *slog.Logger
}

// NewMalgoBackend initializes the platform audio host. deviceName selects
// a capture device by substring match, empty means the system default.
// periodMs sizes the device period; zero keeps the backend default.
func NewMalgoBackend(deviceName string, periodMs int, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := malgo.InitContext(platformBackends(), malgo.ContextConfig{}, func(message string) {
		logger.Debug("Audio backend", slog.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("initializing audio backend: %w", err)
	}

	return &malgoBackend{
		ctx:        ctx,
		deviceName: deviceName,
		periodMs:   periodMs,
		logger:     logger,
	}, nil
}

// platformBackends picks the native host API per OS; nil lets malgo
// auto-select.
func platformBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

func (b *malgoBackend) InitDevice(cfg audio.Config, onRecv func(pcm []byte)) (Device, error) {
	format, err := malgoFormat(cfg.BitDepth)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = cfg.SampleRateHz
	deviceConfig.Alsa.NoMMap = 1
	if b.periodMs > 0 {
		deviceConfig.PeriodSizeInMilliseconds = uint32(b.periodMs)
	}

	if b.deviceName != "" {
		id, err := b.findDevice(b.deviceName)
		if err != nil {
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			onRecv(pInput)
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}

	return &malgoDevice{dev: dev}, nil
}

// findDevice resolves a device name substring to a backend device ID.
func (b *malgoBackend) findDevice(name string) (unsafe.Pointer, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}

	names := make([]string, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), name) {
			b.logger.Info("Capture device selected", slog.String("device", infos[i].Name()))
			return infos[i].ID.Pointer(), nil
		}
		names = append(names, infos[i].Name())
	}

	return nil, fmt.Errorf("capture device %q not found, available: %s", name, strings.Join(names, ", "))
}

func (b *malgoBackend) Uninit() error {
	err := b.ctx.Uninit()
	b.ctx.Free()
	return err
}

// malgoFormat maps a PCM bit depth to the malgo sample format.
func malgoFormat(depth audio.BitDepth) (malgo.FormatType, error) {
	switch depth {
	case audio.PCM8:
		return malgo.FormatU8, nil
	case audio.PCM16:
		return malgo.FormatS16, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: bit depth must be 8 or 16, got %d",
			audio.ErrInvalidConfig, int(depth))
	}
}

type malgoDevice struct {
	dev *malgo.Device
}

func (d *malgoDevice) Start() error { return d.dev.Start() }
func (d *malgoDevice) Stop() error  { return d.dev.Stop() }
func (d *malgoDevice) Uninit()      { d.dev.Uninit() }
