package main

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/NavarchProject/memtrack/pkg/device"
	"github.com/NavarchProject/memtrack/pkg/memmon"
)

func renderTable(w io.Writer, dev device.Device, data memmon.Aggregates) error {
	table := tablewriter.NewWriter(w)
	table.Append([]string{"Device", "Metric", "Bytes", "MiB"})

	for _, key := range sortedKeys(data) {
		table.Append([]string{
			dev.String(),
			key,
			strconv.FormatUint(data[key], 10),
			strconv.FormatUint(memmon.MiB(data[key]), 10),
		})
	}

	table.Render()
	return nil
}

func renderJSON(w io.Writer, data memmon.Aggregates) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func sortedKeys(data memmon.Aggregates) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
