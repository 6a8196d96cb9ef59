package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/nxblue/nxblue-go/pkg/log"
)

// RunFilter copies the events matching filter into a new log file and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if dropped := logger.Dropped(); dropped > 0 {
		return count - dropped, fmt.Errorf("%d events could not be written", dropped)
	}
	return count, nil
}
