package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nxblue/nxblue-go/pkg/log"
)

// RunExport writes the events matching filter to w as JSON lines or CSV.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	var write func(log.Event) error
	var flush func() error

	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		write = func(e log.Event) error { return enc.Encode(e) }
		flush = func() error { return nil }
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		write = func(e log.Event) error { return cw.Write(csvRow(e)) }
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := write(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return flush()
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "peer_name", "peer_address", "type", "detail"}

func csvRow(e log.Event) []string {
	var detail string
	switch {
	case e.Frame != nil:
		detail = string(e.Frame.Data)
	case e.Command != nil:
		detail = strings.Join(append([]string{e.Command.Operation}, e.Command.Params...), ";")
	case e.StateChange != nil:
		detail = e.StateChange.NewState
		if e.StateChange.Reason != "" {
			detail += " (" + e.StateChange.Reason + ")"
		}
	case e.Error != nil:
		detail = e.Error.Message
	}

	return []string{
		e.Timestamp.UTC().Format(timestampLayout),
		e.ConnectionID,
		e.Direction.String(),
		e.Layer.String(),
		e.Category.String(),
		e.PeerName,
		e.PeerAddress,
		strings.ToLower(e.Kind()),
		detail,
	}
}
