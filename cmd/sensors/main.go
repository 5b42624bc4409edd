// Command sensors is the hardware check tool. It scans the I2C bus, matches
// what it finds against the supported sensor table, reads each matched
// adapter once and prints the result. Run it after wiring a new hat to see
// exactly what the daemon would detect.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vigil-care/vigil/internal/i2cbus"
	"github.com/vigil-care/vigil/internal/sensors"
	"github.com/vigil-care/vigil/internal/simbus"
)

type scanRow struct {
	Addr   string             `json:"addr"`
	Model  string             `json:"model,omitempty"`
	Status string             `json:"status"`
	Values map[string]float64 `json:"values,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func main() {
	var busName string
	var demo bool
	var jsonOut bool
	var watch time.Duration

	flag.StringVar(&busName, "bus", "", "I2C bus name (platform default when empty)")
	flag.BoolVar(&demo, "demo", false, "scan a simulated bus instead of hardware")
	flag.BoolVar(&jsonOut, "json", false, "emit JSON instead of a table")
	flag.DurationVar(&watch, "watch", 0, "re-scan at this interval (0 scans once)")
	flag.Parse()

	var bus i2cbus.Bus
	if demo {
		bus = simbus.New()
	} else {
		real, err := i2cbus.Open(busName, i2cbus.DefaultTimeout)
		if err != nil {
			log.Fatalf("open i2c bus: %v", err)
		}
		bus = real
	}
	defer bus.Close()

	scanner := sensors.NewScanner(bus)

	for {
		rows, err := scanOnce(context.Background(), scanner)
		if err != nil {
			log.Fatalf("scan failed: %v", err)
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rows); err != nil {
				log.Fatalf("encode results: %v", err)
			}
		} else {
			if watch > 0 {
				fmt.Printf("--- %s ---\n", time.Now().Format("15:04:05"))
			}
			printTable(rows)
		}

		if watch <= 0 {
			return
		}
		time.Sleep(watch)
	}
}

// scanOnce sweeps the bus and reads every matched adapter once. Unknown
// addresses still show up so a miswired or unsupported device is visible.
func scanOnce(ctx context.Context, scanner *sensors.Scanner) ([]scanRow, error) {
	addrs, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]scanRow, 0, len(addrs))
	for _, addr := range addrs {
		row := scanRow{Addr: fmt.Sprintf("0x%02x", addr)}
		adapter, ok := scanner.Match(addr)
		switch {
		case addr == sensors.AddrWM8960:
			row.Status = "skipped (audio codec)"
		case !ok:
			row.Status = "unknown"
		default:
			row.Model = adapter.Model()
			r, err := adapter.Read()
			if err != nil {
				row.Status = "read failed"
				row.Error = err.Error()
			} else {
				row.Status = "ok"
				row.Values = r.Values
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func printTable(rows []scanRow) {
	if len(rows) == 0 {
		fmt.Println("no devices found on the bus")
		return
	}

	fmt.Printf("%-6s %-10s %-22s %s\n", "ADDR", "MODEL", "STATUS", "VALUES")
	for _, row := range rows {
		model := row.Model
		if model == "" {
			model = "-"
		}
		detail := formatValues(row.Values)
		if row.Error != "" {
			detail = row.Error
		}
		fmt.Printf("%-6s %-10s %-22s %s\n", row.Addr, model, row.Status, detail)
	}
}

// formatValues renders a reading's metrics in stable key order.
func formatValues(values map[string]float64) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, values[k]))
	}
	return strings.Join(parts, " ")
}
