package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/glbridge/vdevice/internal/vdevice"
)

// discardLogger silences the devices selftest assembles internally; the
// command itself reports PASS/FAIL through the configured root logger.
func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeHost is a minimal emu.Host for driving a device in-process, without
// a real CPU or bus. Guest memory is a sparse byte map so DMA addresses
// don't need to be pre-sized.
type fakeHost struct {
	mu  sync.Mutex
	mem map[uint32]byte
}

func newFakeHost() *fakeHost {
	return &fakeHost{mem: make(map[uint32]byte)}
}

func (h *fakeHost) ReadGuestPhysical(addr uint32, dst []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range dst {
		dst[i] = h.mem[addr+uint32(i)]
	}
}

func (h *fakeHost) WriteGuestPhysical(addr uint32, src []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range src {
		h.mem[addr+uint32(i)] = b
	}
}

func (h *fakeHost) SetIRQLine(line int, assert bool) {}

func (h *fakeHost) setBytes(addr uint32, data []byte) {
	h.WriteGuestPhysical(addr, data)
}

// fakeProxy accepts exactly one connection and records every chunk it
// reads, for the selftest scenarios that only care that bytes arrived.
type fakeProxy struct {
	ln       net.Listener
	path     string
	received chan []byte
}

func startFakeProxy(dir string, name string) (*fakeProxy, error) {
	path := filepath.Join(dir, name)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	p := &fakeProxy{ln: ln, path: path, received: make(chan []byte, 64)}
	go p.serve()
	return p, nil
}

func (p *fakeProxy) serve() {
	conn, err := p.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if n > 0 {
			p.received <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

func (p *fakeProxy) close() { p.ln.Close() }

type selftestCheck struct {
	name string
	run  func() error
}

func newSelftestCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "exercise the device's testable properties in-process and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := flags.loadConfig()
			if err != nil {
				return err
			}

			checks := []selftestCheck{
				{"boot sequence sets INT_STATUS to both output-empty bits", checkBootSequence},
				{"output buffer flush reaches the proxy and clears the empty bit", checkOutputFlush},
				{"double-buffer rotation delivers both buffers to the proxy", checkDoubleBufferRotation},
				{"INT_STATUS read-to-clear: second consecutive read returns 0", checkIntStatusReadToClear},
			}

			failed := 0
			for _, c := range checks {
				if err := c.run(); err != nil {
					failed++
					log.Error().Str("check", c.name).Err(err).Msg("FAIL")
				} else {
					log.Info().Str("check", c.name).Msg("PASS")
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d/%d checks failed", failed, len(checks))
			}
			fmt.Printf("selftest: %d/%d checks passed\n", len(checks), len(checks))
			return nil
		},
	}
	return cmd
}

// newSelftestDevice assembles a device against a fakeHost and a fakeProxy
// under a temp directory, with socket, region and semaphore names unique
// to the calling check. The ingress queue keeps its fixed name
// (ingress.QueueName), so it is shared with any other device on the host.
func newSelftestDevice(tag string) (*vdevice.Device, *fakeHost, *fakeProxy, func(), error) {
	dir, err := os.MkdirTemp("", "vdeviced-selftest-"+tag)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	proxy, err := startFakeProxy(dir, "proxy.sock")
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, nil, nil, err
	}

	host := newFakeHost()
	opts := vdevice.DefaultOptions(0x20000000)
	opts.SocketPath = proxy.path
	opts.ParamsRegionName = "vdeviced_selftest_" + tag + "_params"
	opts.HostBufferName = "vdeviced_selftest_" + tag + "_hostbuf"
	opts.HostBufferSize = 4096
	opts.SyncSemName = "vdeviced_selftest_" + tag + "_sync_sem"
	opts.ResetSemName = "vdeviced_selftest_" + tag + "_reset_sem"

	dev, err := vdevice.New(host, opts, discardLogger())
	if err != nil {
		proxy.close()
		os.RemoveAll(dir)
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		dev.Close()
		proxy.close()
		os.RemoveAll(dir)
	}
	return dev, host, proxy, cleanup, nil
}

func checkBootSequence() error {
	dev, _, _, cleanup, err := newSelftestDevice("boot")
	if err != nil {
		return err
	}
	defer cleanup()

	dev.HandleWrite(vdevice.INITIALISE, 0xFFFFFFFF)
	got := dev.HandleRead(vdevice.INT_STATUS)
	want := uint32(vdevice.OUTPUT_BUFFER_1_EMPTY | vdevice.OUTPUT_BUFFER_2_EMPTY)
	if got != want {
		return fmt.Errorf("INT_STATUS after INITIALISE = 0x%x, want 0x%x", got, want)
	}
	return nil
}

func checkOutputFlush() error {
	dev, host, proxy, cleanup, err := newSelftestDevice("flush")
	if err != nil {
		return err
	}
	defer cleanup()

	dev.HandleWrite(vdevice.INITIALISE, 0xFFFFFFFF)
	dev.HandleWrite(vdevice.SET_OUTPUT_BUFFER_1_ADDRESS, 0x1000)
	payload := []byte{1, 2, 3, 4}
	host.setBytes(0x1000, payload)
	dev.HandleWrite(vdevice.OUTPUT_BUFFER_1_AVAILABLE, uint32(len(payload)))

	select {
	case got := <-proxy.received:
		if string(got) != string(payload) {
			return fmt.Errorf("proxy received %v, want %v", got, payload)
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timed out waiting for proxy to receive flushed buffer")
	}

	status := dev.HandleRead(vdevice.INT_STATUS)
	if status&vdevice.OUTPUT_BUFFER_1_EMPTY != 0 {
		return fmt.Errorf("OUTPUT_BUFFER_1_EMPTY still set after flush")
	}
	return nil
}

func checkDoubleBufferRotation() error {
	dev, host, proxy, cleanup, err := newSelftestDevice("rotate")
	if err != nil {
		return err
	}
	defer cleanup()

	dev.HandleWrite(vdevice.INITIALISE, 0xFFFFFFFF)
	dev.HandleWrite(vdevice.SET_OUTPUT_BUFFER_1_ADDRESS, 0x1000)
	dev.HandleWrite(vdevice.SET_OUTPUT_BUFFER_2_ADDRESS, 0x2000)
	host.setBytes(0x1000, []byte{1, 2})
	host.setBytes(0x2000, []byte{3, 4})

	dev.HandleWrite(vdevice.OUTPUT_BUFFER_1_AVAILABLE, 2)
	dev.HandleWrite(vdevice.OUTPUT_BUFFER_2_AVAILABLE, 2)

	// Both 2-byte batches may arrive in a single read from the stream.
	for got := 0; got < 4; {
		select {
		case chunk := <-proxy.received:
			got += len(chunk)
		case <-time.After(2 * time.Second):
			return fmt.Errorf("timed out waiting for both buffers to reach the proxy")
		}
	}
	return nil
}

func checkIntStatusReadToClear() error {
	dev, _, _, cleanup, err := newSelftestDevice("intclear")
	if err != nil {
		return err
	}
	defer cleanup()

	dev.HandleWrite(vdevice.INITIALISE, 0xFFFFFFFF)
	first := dev.HandleRead(vdevice.INT_STATUS)
	if first == 0 {
		return fmt.Errorf("first INT_STATUS read returned 0, expected pending bits")
	}
	second := dev.HandleRead(vdevice.INT_STATUS)
	if second != 0 {
		return fmt.Errorf("second consecutive INT_STATUS read = 0x%x, want 0", second)
	}
	return nil
}
