package tlusb

import (
	"fmt"

	"github.com/google/gousb"
)

// DeviceInfo contains key metadata for a detected TL device. Fields may be
// empty depending on the detection method and platform.
type DeviceInfo struct {
	// Model is "TL100" or "TL200".
	Model string
	// Bus and Address locate the device on the USB topology (libusb only).
	Bus     int
	Address int
	// Path is the system device interface path (Windows SetupAPI only).
	Path string
}

// Detect reports whether a TL100/TL200 device is present, with one DeviceInfo
// per match. It enumerates through libusb; on Windows, SystemDevices offers
// an alternative that needs no libusb runtime.
func Detect() (bool, []DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var infos []DeviceInfo
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(tlVendorID) &&
			(desc.Product == gousb.ID(tl100ProductID) || desc.Product == gousb.ID(tl200ProductID))
	})
	for _, d := range devs {
		infos = append(infos, DeviceInfo{
			Model:   modelName(uint16(d.Desc.Product)),
			Bus:     d.Desc.Bus,
			Address: d.Desc.Address,
		})
		d.Close()
	}
	if err != nil && len(infos) == 0 {
		return false, nil, fmt.Errorf("enumerating USB devices: %w", err)
	}
	return len(infos) > 0, infos, nil
}

func modelName(pid uint16) string {
	switch pid {
	case tl100ProductID:
		return "TL100"
	case tl200ProductID:
		return "TL200"
	default:
		return fmt.Sprintf("unknown (%04x)", pid)
	}
}
