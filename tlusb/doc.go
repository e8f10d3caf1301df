// Package tlusb opens TectroLabs TL100/TL200 hardware random number
// generators over bulk USB via gousb and exposes them as an entropy
// transport. It also provides device detection: cross-platform through
// libusb, and on Windows additionally through SetupAPI so presence can be
// probed without a libusb runtime.
package tlusb
