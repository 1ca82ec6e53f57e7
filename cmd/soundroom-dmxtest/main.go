// Command soundroom-dmxtest drives a DMX universe directly over a serial
// transport for fixture commissioning, outside of the full engine. Its
// flag/logging shape is grounded on the teacher's cmd/direwolf diagnostic
// entrypoints and src/kissutil.go's pflag idiom.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/soundroom/engine/internal/dmx"
)

func main() {
	var (
		device   = pflag.StringP("device", "d", "/dev/ttyUSB0", "Serial device for the DMX transport")
		baud     = pflag.IntP("baud", "b", 57600, "Baud rate for the DMX serial transport")
		universe = pflag.IntP("universe", "u", 0, "DMX universe number")
		address  = pflag.IntP("address", "a", 1, "1-based DMX start address to write to")
		red      = pflag.Int("r", 255, "Red channel value (0-255)")
		green    = pflag.Int("g", 0, "Green channel value (0-255)")
		blue     = pflag.Int("b2", 0, "Blue channel value (0-255)")
		hold     = pflag.Duration("hold", 3*time.Second, "How long to hold the color before blacking out")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	transport, err := dmx.OpenSerialTransport(*device, *baud)
	if err != nil {
		logger.Error("opening serial transport", "err", err)
		os.Exit(1)
	}
	defer transport.Close()

	eng := dmx.NewEngine(transport, *universe, logger)

	logger.Info("writing test color", "address", *address, "r", *red, "g", *green, "b", *blue)
	eng.SetChannels(*address, []int{*red, *green, *blue})
	if err := eng.Flush(time.Now()); err != nil {
		logger.Error("flushing universe", "err", err)
		os.Exit(1)
	}

	time.Sleep(*hold)

	logger.Info("blackout")
	if err := eng.Blackout(time.Now()); err != nil {
		logger.Error("blackout failed", "err", err)
		os.Exit(1)
	}

	fmt.Println("done")
}
