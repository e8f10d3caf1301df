// tldetect reports whether a TL100/TL200 device is reachable, probing the
// bulk USB interface, the Windows SetupAPI device tree and the serial bridge.
package main

import (
	"fmt"
	"os"

	"github.com/mathiashelseth/tl200/tlserial"
	"github.com/mathiashelseth/tl200/tlusb"
)

func main() {
	found := false

	present, infos, err := tlusb.Detect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "usb detect: %v\n", err)
	}
	if present {
		found = true
		for i, d := range infos {
			fmt.Printf("USB device %d:\n", i+1)
			fmt.Printf("  Model: %s\n", d.Model)
			fmt.Printf("  Bus/Address: %d/%d\n", d.Bus, d.Address)
		}
	}

	// SetupAPI probe; a no-op everywhere but Windows.
	sysInfos, err := tlusb.SystemDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "system detect: %v\n", err)
	}
	for i, d := range sysInfos {
		found = true
		fmt.Printf("System device %d:\n", i+1)
		fmt.Printf("  Model: %s\n", d.Model)
		fmt.Printf("  Path: %s\n", d.Path)
	}

	portName, err := tlserial.FindPort()
	if err == nil {
		found = true
		fmt.Printf("Serial bridge:\n")
		fmt.Printf("  Port: %s\n", portName)
	}

	if !found {
		fmt.Println("No TL100/TL200 devices found (VID 0x1fc9 PID 0x8110/0x8111)")
		os.Exit(1)
	}
}
