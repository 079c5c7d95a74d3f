package hardware

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var windowsCPUFields = []string{"Manufacturer", "Name", "NumberOfCores", "NumberOfLogicalProcessors", "MaxClockSpeed"}

// windowsProbe asks WMI for Win32_Processor rows, one per socket. wmic is
// deprecated on recent builds so PowerShell is tried second.
type windowsProbe struct {
	runner CommandRunner
	arch   string
}

func (p *windowsProbe) name() string { return "windows" }

func (p *windowsProbe) probe(ctx context.Context) ([]CPUInfo, error) {
	out, err := p.runner.Run(ctx, "wmic", "cpu", "get", strings.Join(windowsCPUFields, ","), "/format:csv")
	if err == nil {
		var cpus []CPUInfo
		if cpus, err = parseWindowsCSV(out, p.arch); err == nil {
			return cpus, nil
		}
	}

	script := fmt.Sprintf("Get-CimInstance Win32_Processor | Select-Object %s | ConvertTo-Csv -NoTypeInformation",
		strings.Join(windowsCPUFields, ","))
	out, psErr := p.runner.Run(ctx, "powershell", "-NoProfile", "-Command", script)
	if psErr != nil {
		return nil, fmt.Errorf("wmic: %v; powershell: %w", err, psErr)
	}
	return parseWindowsCSV(out, p.arch)
}

// parseWindowsCSV reads columns by header name so wmic's leading Node column
// and PowerShell's quoting both work.
func parseWindowsCSV(data []byte, arch string) ([]CPUInfo, error) {
	data = bytes.ReplaceAll(data, []byte("\r"), nil)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		header map[string]int
		cpus   []CPUInfo
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse processor csv: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if header == nil {
			header = make(map[string]int, len(rec))
			for i, h := range rec {
				header[strings.TrimSpace(h)] = i
			}
			if _, ok := header["NumberOfCores"]; !ok {
				return nil, fmt.Errorf("parse processor csv: missing NumberOfCores column")
			}
			continue
		}

		field := func(name string) string {
			i, ok := header[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		cores, _ := strconv.Atoi(field("NumberOfCores"))
		threads, _ := strconv.Atoi(field("NumberOfLogicalProcessors"))
		mhz, _ := strconv.ParseUint(field("MaxClockSpeed"), 10, 64)

		cpus = append(cpus, CPUInfo{
			VendorID:  field("Manufacturer"),
			ModelName: field("Name"),
			Cores:     cores,
			Threads:   threads,
			ClockHz:   mhz * 1_000_000,
			Arch:      arch,
		})
	}
	if len(cpus) == 0 {
		return nil, errNoCPUs
	}
	return cpus, nil
}
