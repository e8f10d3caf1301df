// tlexcel converts a tlcollect capture (.bin or .csv) into an Excel workbook
// with per-sample ones counts, the cumulative mean and a z-score line chart.
// Sample size and interval are recovered from the capture file name.
package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mathiashelseth/tl200/naming"
)

const sheetName = "Zscore"

// sampleRow is one capture sample with its computed statistics.
type sampleRow struct {
	Label          string
	Ones           int
	CumulativeMean float64
	ZScore         float64
}

// readBin slices the capture into sampleBytes-sized samples and counts the
// set bits of each. A short final sample is kept.
func readBin(path string, sampleBytes int) ([]sampleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	rows := make([]sampleRow, 0, 1024)
	buf := make([]byte, sampleBytes)
	for sample := 1; ; sample++ {
		n, err := io.ReadFull(reader, buf)
		if n == 0 {
			break
		}
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		ones := 0
		for _, b := range buf[:n] {
			ones += bits.OnesCount8(b)
		}
		rows = append(rows, sampleRow{Label: strconv.Itoa(sample), Ones: ones})
		if n < sampleBytes {
			break
		}
	}
	return rows, nil
}

// readCSV parses the "timestamp,ones" lines written by tlcollect, labelling
// each row with the HH:MM:SS part of the timestamp.
func readCSV(path string) ([]sampleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	rows := make([]sampleRow, 0, len(records))
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		ones, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid ones value %q: %w", rec[1], err)
		}
		rows = append(rows, sampleRow{Label: timeLabel(strings.TrimSpace(rec[0])), Ones: ones})
	}
	return rows, nil
}

// timeLabel reduces a capture timestamp to HH:MM:SS, falling back to the raw
// string when it does not parse.
func timeLabel(s string) string {
	if t, err := time.Parse("20060102T15:04:05", s); err == nil {
		return t.Format("15:04:05")
	}
	return s
}

// zTest fills in the cumulative mean and z-score for each row. For unbiased
// random data the ones count of an n-bit sample is binomial with mean n/2 and
// variance n/4.
func zTest(rows []sampleRow, sampleBits int) {
	expectedMean := 0.5 * float64(sampleBits)
	expectedStdDev := math.Sqrt(float64(sampleBits) * 0.25)
	if expectedStdDev == 0 {
		return
	}
	sum := 0
	for i := range rows {
		sum += rows[i].Ones
		cumMean := float64(sum) / float64(i+1)
		rows[i].CumulativeMean = cumMean
		rows[i].ZScore = (cumMean - expectedMean) / (expectedStdDev / math.Sqrt(float64(i+1)))
	}
}

// writeWorkbook writes rows and a z-score line chart next to the capture
// file, swapping the extension for .xlsx.
func writeWorkbook(rows []sampleRow, capturePath string, sampleBits, intervalSec int, firstHeader string) error {
	if len(rows) == 0 {
		return errors.New("no data to write")
	}
	outPath := naming.TrimExt(capturePath) + ".xlsx"
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	if defaultSheet != sheetName {
		f.NewSheet(sheetName)
		f.DeleteSheet(defaultSheet)
	}

	_ = f.SetCellStr(sheetName, "A1", firstHeader)
	_ = f.SetCellStr(sheetName, "B1", "ones")
	_ = f.SetCellStr(sheetName, "C1", "cumulative_mean")
	_ = f.SetCellStr(sheetName, "D1", "z_test")
	for i, r := range rows {
		rowIdx := i + 2
		_ = f.SetCellStr(sheetName, fmt.Sprintf("A%d", rowIdx), r.Label)
		_ = f.SetCellInt(sheetName, fmt.Sprintf("B%d", rowIdx), r.Ones)
		_ = f.SetCellFloat(sheetName, fmt.Sprintf("C%d", rowIdx), r.CumulativeMean, 6, 64)
		_ = f.SetCellFloat(sheetName, fmt.Sprintf("D%d", rowIdx), r.ZScore, 6, 64)
	}

	endRow := len(rows) + 1
	chart := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       fmt.Sprintf("%s!$D$1", sheetName),
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", sheetName, endRow),
				Values:     fmt.Sprintf("%s!$D$2:$D$%d", sheetName, endRow),
			},
		},
		Title:  []excelize.RichTextRun{{Text: filepath.Base(capturePath)}},
		Legend: excelize.ChartLegend{Position: "none"},
		XAxis: excelize.ChartAxis{Title: []excelize.RichTextRun{
			{Text: fmt.Sprintf("Samples - one every %d second(s)", intervalSec)}}},
		YAxis: excelize.ChartAxis{Title: []excelize.RichTextRun{
			{Text: fmt.Sprintf("Z-score - sample size = %d bits", sampleBits)}},
			MajorGridLines: true},
	}
	if err := f.AddChart(sheetName, "F2", chart); err != nil {
		return err
	}
	return f.SaveAs(outPath)
}

func run(capturePath string) error {
	sampleBytes, err := naming.SampleBytes(capturePath)
	if err != nil {
		return err
	}
	intervalSec, err := naming.Interval(capturePath)
	if err != nil {
		return err
	}

	var rows []sampleRow
	firstHeader := "samples"
	switch strings.ToLower(filepath.Ext(capturePath)) {
	case ".bin":
		rows, err = readBin(capturePath, sampleBytes)
	case ".csv":
		rows, err = readCSV(capturePath)
		firstHeader = "time"
	default:
		return fmt.Errorf("unsupported file type: %s", filepath.Ext(capturePath))
	}
	if err != nil {
		return err
	}

	zTest(rows, sampleBytes*8)
	return writeWorkbook(rows, capturePath, sampleBytes*8, intervalSec, firstHeader)
}

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tlexcel <path-to-.bin-or-.csv>")
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
