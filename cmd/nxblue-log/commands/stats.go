package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nxblue/nxblue-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	Header            log.FileHeader
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Operations        map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Start, End        time.Time
}

// ConnectionStats holds statistics for one socket.
type ConnectionStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	CommandsIn  int
	CommandsOut int
	Role        log.Role
	PeerName    string
	PeerAddress string
	RemoteAddr  string
	CloseReason string
}

// CollectStats reads every event in the file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		Header:            reader.Header(),
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Operations:        make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.Start.IsZero() || event.Timestamp.Before(s.Start) {
		s.Start = event.Timestamp
	}
	if event.Timestamp.After(s.End) {
		s.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Role:      event.LocalRole,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.PeerName == "" {
		conn.PeerName = event.PeerName
	}
	if conn.PeerAddress == "" {
		conn.PeerAddress = event.PeerAddress
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}

	switch {
	case event.Command != nil:
		s.Operations[event.Command.Operation]++
		if event.Direction == log.DirectionIn {
			conn.CommandsIn++
		} else {
			conn.CommandsOut++
		}
	case event.StateChange != nil && event.StateChange.Reason != "":
		conn.CloseReason = event.StateChange.Reason
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats prints statistics about the log file.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== nxblue Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.Header.Version > 0 {
		fmt.Fprintf(w, "Format:     %s v%d, created %s\n", stats.Header.Magic, stats.Header.Version, stats.Header.Created.Format(time.RFC3339))
	}

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.End.Sub(stats.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerCommand, log.LayerSocket} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Operations) > 0 {
		ops := make([]string, 0, len(stats.Operations))
		for op := range stats.Operations {
			ops = append(ops, op)
		}
		sort.Slice(ops, func(i, j int) bool {
			if stats.Operations[ops[i]] != stats.Operations[ops[j]] {
				return stats.Operations[ops[i]] > stats.Operations[ops[j]]
			}
			return ops[i] < ops[j]
		})
		fmt.Fprintln(w, "Commands by Operation:")
		for _, op := range ops {
			fmt.Fprintf(w, "  %-12s %d\n", op+":", stats.Operations[op])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s, %d events, %d in / %d out commands, duration %s\n",
				shortenConnID(c.id), c.stats.Role, c.stats.Events, c.stats.CommandsIn, c.stats.CommandsOut, duration)
			if c.stats.PeerName != "" || c.stats.PeerAddress != "" {
				fmt.Fprintf(w, "           Peer: %s %s\n", c.stats.PeerName, c.stats.PeerAddress)
			}
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
			if c.stats.CloseReason != "" {
				fmt.Fprintf(w, "           Closed: %s\n", c.stats.CloseReason)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
