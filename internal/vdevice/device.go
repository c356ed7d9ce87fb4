package vdevice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/glbridge/vdevice/internal/dma"
	"github.com/glbridge/vdevice/internal/egress"
	"github.com/glbridge/vdevice/internal/emu"
	"github.com/glbridge/vdevice/internal/ingress"
	"github.com/glbridge/vdevice/internal/shm"
)

// Options carries the construction-time parameters spec.md leaves as
// literal constants, so the ambient config layer can relocate them
// without touching New's signature.
type Options struct {
	BaseAddr         uint32
	SocketPath       string
	ParamsRegionName string
	HostBufferName   string
	HostBufferSize   int
	SyncSemName      string
	ResetSemName     string
}

// DefaultOptions returns the literal names and sizes spec.md §6 specifies.
func DefaultOptions(baseAddr uint32) Options {
	return Options{
		BaseAddr:         baseAddr,
		SocketPath:       egress.DefaultSocketPath,
		ParamsRegionName: ParamsRegionName,
		HostBufferName:   HostBufferRegion,
		HostBufferSize:   HostBufferSize,
		SyncSemName:      SyncSemaphoreName,
		ResetSemName:     ResetSemaphoreName,
	}
}

// Device is the assembled device instance wiring C1-C5 together: the
// parameter-block mapping, the four DMA buffers, the two semaphores, the
// ingress notifier and the egress socket (spec.md §4.6).
type Device struct {
	mu sync.Mutex // guards signal_type, signal_value, host_data_buffer_offset

	params       paramBlock
	paramsRegion *shm.Region
	hostRegion   *shm.Region

	outputBuffers [2]*dma.Buffer
	inputBuffers  [2]*dma.Buffer

	resetSem *shm.Semaphore
	syncSem  *shm.Semaphore

	notifier *ingress.Notifier
	socket   *egress.Socket

	host emu.Host
	log  zerolog.Logger
}

type guestMemoryAdapter struct {
	host emu.Host
}

func (g guestMemoryAdapter) ReadGuestPhysical(addr uint32, dst []byte) {
	g.host.ReadGuestPhysical(addr, dst)
}

func (g guestMemoryAdapter) WriteGuestPhysical(addr uint32, src []byte) {
	g.host.WriteGuestPhysical(addr, src)
}

// New assembles a device instance against host, following the ten steps
// of spec.md §4.6. On any failure it tears down whatever was already
// created and returns the error; the device is never partially attached.
func New(host emu.Host, opts Options, log zerolog.Logger) (*Device, error) {
	log = log.With().Str("component", "vdevice").Logger()

	d := &Device{host: host, log: log}

	paramsRegion, err := shm.Create(opts.ParamsRegionName, ParamBlockSize)
	if err != nil {
		return nil, fmt.Errorf("vdevice: create params region: %w", err)
	}
	d.paramsRegion = paramsRegion
	d.params = newParamBlock(paramsRegion.Bytes())

	hostRegion, err := shm.Create(opts.HostBufferName, opts.HostBufferSize)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("vdevice: create host buffer region: %w", err)
	}
	d.hostRegion = hostRegion

	mem := guestMemoryAdapter{host: host}
	for i := range d.outputBuffers {
		d.outputBuffers[i] = dma.New(i+1, mem)
	}
	for i := range d.inputBuffers {
		d.inputBuffers[i] = dma.New(i+1, mem)
	}

	resetSem, err := shm.OpenSemaphore(opts.ResetSemName)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("vdevice: open reset semaphore: %w", err)
	}
	d.resetSem = resetSem

	syncSem, err := shm.OpenSemaphore(opts.SyncSemName)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("vdevice: open sync semaphore: %w", err)
	}
	d.syncSem = syncSem

	notifier, err := ingress.New(d, log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("vdevice: create ingress notifier: %w", err)
	}
	d.notifier = notifier
	d.notifier.Start()

	d.socket = egress.New(opts.SocketPath)

	host.SetIRQLine(0, false)

	return d, nil
}

// SetBuildInfo stamps the additive diagnostic block so a tool attached to
// the params region by name can read version/commit/build-time without a
// debugger; it has no effect on device semantics.
func (d *Device) SetBuildInfo(info BuildInfo) {
	d.params.writeBuildInfo(info)
}

// Identity publishes the device's registration identity to the emulator
// (spec.md §4.6 step 2): fixed name, 4 KiB window, one IRQ line.
func (d *Device) Identity(base uint32) emu.DeviceIdentity {
	return emu.DeviceIdentity{
		Name:       DeviceName,
		BaseAddr:   base,
		WindowSize: WindowSize,
		NumIRQs:    NumIRQs,
	}
}

// Close tears down the device's resources in the reverse order they were
// created (spec.md §4.6). It tolerates partially constructed devices so
// New can call it on any failure path.
func (d *Device) Close() error {
	var errs []error

	if d.socket != nil {
		if err := d.socket.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.notifier != nil {
		d.notifier.Stop()
		if err := d.notifier.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := d.notifier.Unlink(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.syncSem != nil {
		if err := d.syncSem.CloseAndUnlink(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.resetSem != nil {
		if err := d.resetSem.CloseAndUnlink(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.hostRegion != nil {
		if err := d.hostRegion.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.paramsRegion != nil {
		if err := d.paramsRegion.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
