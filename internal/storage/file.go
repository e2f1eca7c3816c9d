package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "baubot/pkg/logx"
)

const fileCompactEvery = 500

// fileStore keeps the directory in memory and persists every change.
//
// Files:
//   - <prefix>.recipients.snapshot.json (periodic snapshot)
//   - <prefix>.recipients.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every fileCompactEvery writes
// and on Close.
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	m            map[string]int64
	writes       int
}

type journalRecord struct {
	Op     string `json:"op"` // "set" or "del"
	Name   string `json:"name"`
	ChatID int64  `json:"chat_id,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".recipients.snapshot.json"
	journalPath := prefix + ".recipients.journal.jsonl"

	m := map[string]int64{}
	if err := loadSnapshot(snapPath, m); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, m); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", prefix), logx.Int("recipients", len(m)))
	return &fileStore{log: log, snapshotPath: snapPath, journal: jf, m: m}, nil
}

func (s *fileStore) Resolve(ctx context.Context, name string) (int64, bool, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, false, ErrClosed
	}
	id, ok := s.m[n]
	return id, ok, nil
}

func (s *fileStore) Register(ctx context.Context, name string, chatID int64) (int64, bool, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, false, ErrClosed
	}
	if err := s.appendLocked(journalRecord{Op: "set", Name: n, ChatID: chatID}); err != nil {
		return 0, false, err
	}
	prev, ok := s.m[n]
	s.m[n] = chatID
	return prev, ok, nil
}

func (s *fileStore) Unregister(ctx context.Context, name string) (int64, error) {
	n, err := normalize(name)
	if err != nil {
		return 0, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	id, ok := s.m[n]
	if !ok {
		return 0, ErrNotFound
	}
	if err := s.appendLocked(journalRecord{Op: "del", Name: n}); err != nil {
		return 0, err
	}
	delete(s.m, n)
	return id, nil
}

func (s *fileStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	return errors.Join(cerr, err)
}

// appendLocked writes the record before the in-memory map changes, so a
// failed write leaves both unchanged.
func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.m); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

// replayJournal applies records in order. A torn trailing line from a crash
// is skipped.
func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Name == "" {
			continue
		}
		switch r.Op {
		case "set":
			out[r.Name] = r.ChatID
		case "del":
			delete(out, r.Name)
		}
	}
	return sc.Err()
}
