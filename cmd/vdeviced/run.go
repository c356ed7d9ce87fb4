package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glbridge/vdevice/internal/vdevice"
)

// standaloneHost is the stub emu.Host used when vdeviced runs without a
// real emulator attached: a flat backing array stands in for guest
// physical memory, and IRQ line changes are ignored. It exists so a
// proxy binary can be driven and tested against the shared-memory/socket
// surface without also needing a working CPU/bus implementation.
type standaloneHost struct {
	mem []byte
}

func newStandaloneHost(size int) *standaloneHost {
	return &standaloneHost{mem: make([]byte, size)}
}

func (h *standaloneHost) ReadGuestPhysical(addr uint32, dst []byte) {
	if int(addr) >= len(h.mem) {
		return
	}
	copy(dst, h.mem[addr:])
}

func (h *standaloneHost) WriteGuestPhysical(addr uint32, src []byte) {
	if int(addr) >= len(h.mem) {
		return
	}
	copy(h.mem[addr:], src)
}

func (h *standaloneHost) SetIRQLine(line int, assert bool) {}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var guestMemSize int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "assemble and register the device standalone, blocking until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.loadConfig()
			if err != nil {
				return err
			}

			host := newStandaloneHost(guestMemSize)
			dev, err := vdevice.New(host, cfg.VDeviceOptions(), log)
			if err != nil {
				return fmt.Errorf("assemble device: %w", err)
			}
			defer dev.Close()

			log.Info().
				Str("params_region", cfg.ParamsRegionName).
				Str("host_buffer_region", cfg.HostBufferName).
				Str("socket_path", cfg.SocketPath).
				Msg("device assembled, waiting for interrupt")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().IntVar(&guestMemSize, "guest-mem-size", 64<<20, "size of the stand-in guest physical memory backing array")

	return cmd
}
