//go:build !windows

package tlusb

// SystemDevices is a Windows-only SetupAPI probe; on other platforms it
// reports nothing and Detect (libusb) is the only enumeration path.
func SystemDevices() ([]DeviceInfo, error) {
	return nil, nil
}
