package query

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

var responseSentPattern = regexp.MustCompile(`Response sent in ([0-9]+(?:\.[0-9]+)?)s`)

// LogTail reads the server log written since the last Mark and extracts the
// server-side response time the mock engine logs for every request.
type LogTail struct {
	Path   string
	offset int64
}

// Mark remembers the current end of the log.
func (t *LogTail) Mark() error {
	info, err := os.Stat(t.Path)
	if os.IsNotExist(err) {
		t.offset = 0
		return nil
	}
	if err != nil {
		return err
	}
	t.offset = info.Size()
	return nil
}

// LastAPISeconds returns the last response time logged after Mark.
func (t *LogTail) LastAPISeconds() (float64, bool, error) {
	f, err := os.Open(t.Path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return 0, false, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, false, err
	}

	matches := responseSentPattern.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(string(matches[len(matches)-1][1]), 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse response time: %w", err)
	}
	return v, true, nil
}
