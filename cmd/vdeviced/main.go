// Command vdeviced wires the vdevice package into a standalone process:
// "run" assembles and registers the device against a stub host (useful
// for driving a real proxy binary without a full emulator attached), and
// "selftest" exercises the device's testable properties against an
// in-process fake emulator and proxy.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
