package state

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// FileStore keeps one small key=value record per channel in a directory.
// Values are Go-quoted strings, so records are parsed, never evaluated.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(channel string) string {
	return filepath.Join(s.dir, FileName(channel))
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, channel string) (ChannelState, error) {
	if err := ctx.Err(); err != nil {
		return ChannelState{}, err
	}
	f, err := os.Open(s.path(channel))
	if errors.Is(err, os.ErrNotExist) {
		return ChannelState{}, nil
	}
	if err != nil {
		return ChannelState{}, fmt.Errorf("open channel record: %w", err)
	}
	defer f.Close()
	return decodeRecord(f)
}

// Save implements Store. The record is written to a temporary file in the same
// directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, channel string, st ChannelState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path(channel), bytes.NewReader(encodeRecord(st))); err != nil {
		return fmt.Errorf("write channel record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func encodeRecord(st ChannelState) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "topic=%s\n", strconv.Quote(st.Topic))
	if st.Key != "" {
		fmt.Fprintf(&buf, "key=%s\n", strconv.Quote(st.Key))
	}
	return buf.Bytes()
}

func decodeRecord(r io.Reader) (ChannelState, error) {
	var st ChannelState
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return ChannelState{}, fmt.Errorf("%w: missing '=' in %q", ErrCorruptRecord, line)
		}
		value, err := strconv.Unquote(strings.TrimSpace(v))
		if err != nil {
			return ChannelState{}, fmt.Errorf("%w: bad value for %q", ErrCorruptRecord, k)
		}
		switch strings.TrimSpace(k) {
		case "topic":
			st.Topic = value
		case "key":
			st.Key = value
		}
	}
	if err := scanner.Err(); err != nil {
		return ChannelState{}, fmt.Errorf("read channel record: %w", err)
	}
	return st, nil
}
