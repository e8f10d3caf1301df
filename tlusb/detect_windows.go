//go:build windows

package tlusb

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// GUID for all USB device interfaces: {A5DCBF10-6530-11D2-901F-00C04FB951ED}
var guidUsbDevice = windows.GUID{
	Data1: 0xA5DCBF10, Data2: 0x6530, Data3: 0x11D2,
	Data4: [8]byte{0x90, 0x1F, 0x00, 0xC0, 0x4F, 0xB9, 0x51, 0xED},
}

const (
	digcfPresent         = 0x00000002
	digcfDeviceInterface = 0x00000010
)

type deviceInterfaceData struct {
	cbSize             uint32
	interfaceClassGuid windows.GUID
	flags              uint32
	reserved           uintptr
}

var (
	modSetupapi              = windows.NewLazySystemDLL("setupapi.dll")
	procGetClassDevs         = modSetupapi.NewProc("SetupDiGetClassDevsW")
	procEnumDeviceInterfaces = modSetupapi.NewProc("SetupDiEnumDeviceInterfaces")
	procGetInterfaceDetail   = modSetupapi.NewProc("SetupDiGetDeviceInterfaceDetailW")
	procDestroyDeviceList    = modSetupapi.NewProc("SetupDiDestroyDeviceInfoList")
)

// SystemDevices enumerates present TL100/TL200 devices through SetupAPI,
// matching on the VID/PID embedded in each device interface path. Unlike
// Detect it requires no libusb runtime, so it is the cheap presence probe on
// Windows.
func SystemDevices() ([]DeviceInfo, error) {
	h, _, callErr := procGetClassDevs.Call(
		uintptr(unsafe.Pointer(&guidUsbDevice)), 0, 0,
		uintptr(digcfPresent|digcfDeviceInterface))
	if h == uintptr(windows.InvalidHandle) {
		return nil, fmt.Errorf("SetupDiGetClassDevs: %w", callErr)
	}
	defer procDestroyDeviceList.Call(h) //nolint:errcheck

	var infos []DeviceInfo
	for index := uint32(0); ; index++ {
		var ifd deviceInterfaceData
		ifd.cbSize = uint32(unsafe.Sizeof(ifd))
		ok, _, _ := procEnumDeviceInterfaces.Call(
			h, 0, uintptr(unsafe.Pointer(&guidUsbDevice)),
			uintptr(index), uintptr(unsafe.Pointer(&ifd)))
		if ok == 0 {
			break // ERROR_NO_MORE_ITEMS ends the enumeration
		}
		path, err := interfacePath(h, &ifd)
		if err != nil {
			continue
		}
		if pid, matched := matchTLPath(path); matched {
			infos = append(infos, DeviceInfo{Model: modelName(pid), Path: path})
		}
	}
	return infos, nil
}

// interfacePath retrieves the device interface path for one enumerated
// interface via SetupDiGetDeviceInterfaceDetailW.
func interfacePath(h uintptr, ifd *deviceInterfaceData) (string, error) {
	var required uint32
	procGetInterfaceDetail.Call(h, uintptr(unsafe.Pointer(ifd)), 0, 0,
		uintptr(unsafe.Pointer(&required)), 0) //nolint:errcheck
	if required == 0 {
		return "", fmt.Errorf("no detail data for device interface")
	}

	// SP_DEVICE_INTERFACE_DETAIL_DATA_W: a cbSize header followed by a
	// variable-length UTF-16 path.
	buf := make([]byte, required)
	detail := (*struct {
		cbSize uint32
		path   [1]uint16
	})(unsafe.Pointer(&buf[0]))
	// cbSize covers the fixed part only: 8 on 64-bit builds (DWORD plus
	// alignment padding), 6 on 32-bit.
	if unsafe.Sizeof(uintptr(0)) == 8 {
		detail.cbSize = 8
	} else {
		detail.cbSize = 6
	}

	ok, _, callErr := procGetInterfaceDetail.Call(
		h, uintptr(unsafe.Pointer(ifd)),
		uintptr(unsafe.Pointer(detail)), uintptr(required),
		0, 0)
	if ok == 0 {
		return "", fmt.Errorf("SetupDiGetDeviceInterfaceDetail: %w", callErr)
	}
	pathPtr := (*uint16)(unsafe.Pointer(&detail.path[0]))
	return windows.UTF16PtrToString(pathPtr), nil
}

// matchTLPath checks a device interface path like
// \\?\usb#vid_1fc9&pid_8110#... against the TL vendor/product IDs.
func matchTLPath(path string) (uint16, bool) {
	p := strings.ToLower(path)
	if !strings.Contains(p, fmt.Sprintf("vid_%04x", tlVendorID)) {
		return 0, false
	}
	for _, pid := range []uint16{tl100ProductID, tl200ProductID} {
		if strings.Contains(p, fmt.Sprintf("pid_%04x", pid)) {
			return pid, true
		}
	}
	return 0, false
}
