package adapter

import (
	"bufio"
	"bytes"
	"fmt"
)

// MaxLineSize bounds a single JSONL record.
const MaxLineSize = 16 * 1024 * 1024

// EachLine calls fn with every non-blank line of data and its 1-based line
// number.
func EachLine(data []byte, fn func(line int, record []byte) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024), MaxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		record := bytes.TrimSpace(scanner.Bytes())
		if len(record) == 0 {
			continue
		}
		if err := fn(lineNo, record); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan transcript: %w", err)
	}
	return nil
}
