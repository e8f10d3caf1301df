// Package naming builds the capture-file naming convention used by the
// collection CLIs, encoding source, sample size and interval into the name so
// downstream analysis can recover them without side-channel metadata.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source identifies where conditioned bytes were collected from.
// Allowed values are: "tlusb" (bulk USB device), "tlserial" (CDC bridge) and
// "tlsim" (simulated device).
type Source string

const (
	SourceUSB    Source = "tlusb"
	SourceSerial Source = "tlserial"
	SourceSim    Source = "tlsim"
)

// Validate checks whether s is one of the allowed source identifiers.
func (s Source) Validate() error {
	if s == SourceUSB || s == SourceSerial || s == SourceSim {
		return nil
	}
	return fmt.Errorf("invalid source: %q (allowed: tlusb, tlserial, tlsim)", string(s))
}

// BuildBaseName builds the base filename using the convention:
//
//	YYYYMMDDTHHMMSS_{source}_s{sampleBytes}_i{intervalSeconds}
//
// where sampleBytes > 0 is the conditioned bytes per sample and
// intervalSeconds > 0 is the collection interval.
func BuildBaseName(now time.Time, source Source, sampleBytes int, intervalSeconds int) (string, error) {
	if err := source.Validate(); err != nil {
		return "", err
	}
	if sampleBytes <= 0 {
		return "", errors.New("sampleBytes must be > 0")
	}
	if intervalSeconds <= 0 {
		return "", errors.New("intervalSeconds must be > 0")
	}
	stamp := now.Format("20060102T150405")
	return fmt.Sprintf("%s_%s_s%d_i%d", stamp, string(source), sampleBytes, intervalSeconds), nil
}

// BuildBinCSVPaths builds full paths for the .bin and .csv capture pair
// inside dir (dir may be empty).
func BuildBinCSVPaths(dir string, now time.Time, source Source, sampleBytes int, intervalSeconds int) (binPath string, csvPath string, err error) {
	base, err := BuildBaseName(now, source, sampleBytes, intervalSeconds)
	if err != nil {
		return "", "", err
	}
	return join(dir, base+".bin"), join(dir, base+".csv"), nil
}

var (
	sampleBytesRe = regexp.MustCompile(`_s(\d+)_i`)
	intervalRe    = regexp.MustCompile(`_i(\d+)`)
)

// SampleBytes recovers the per-sample byte count from a capture file path.
func SampleBytes(path string) (int, error) {
	return extract(sampleBytesRe, path, "sample size")
}

// Interval recovers the collection interval in seconds from a capture file
// path.
func Interval(path string) (int, error) {
	return extract(intervalRe, path, "interval")
}

func extract(re *regexp.Regexp, path, what string) (int, error) {
	m := re.FindStringSubmatch(path)
	if len(m) < 2 {
		return 0, fmt.Errorf("%s not found in file name: %s", what, filepath.Base(path))
	}
	return strconv.Atoi(m[1])
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// TrimExt returns path without its extension, for deriving sibling output
// files.
func TrimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
