package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yanun0323/logs"

	"tradegw/internal/schema"
)

// Walk replays every journaled record under dir in write order and hands
// each to fn. The payload slice is only valid during the call.
//
// A record that cannot be decoded ends that segment: a crash can tear the
// tail of the newest file and that must not block recovery. fn errors
// abort the walk.
func Walk(dir, prefix string, fn func(schema.EventHeader, []byte) error) error {
	files, err := collectFiles(dir, prefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := walkFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func collectFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".wal") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	// Segment names embed open time and id, name order is write order.
	sort.Strings(files)
	return files, nil
}

func walkFile(path string, fn func(schema.EventHeader, []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open journal segment: %w", err)
	}
	defer f.Close()

	r := NewReader(f)
	for {
		header, payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			logs.Warnf("journal segment truncated, path: %s, err: %+v", path, err)
			return nil
		}
		if err := fn(header, payload); err != nil {
			return err
		}
	}
}
