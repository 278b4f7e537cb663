package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"petreminder/pkg/logx"
)

// fileStore keeps everything under one directory:
//   - owners/<owner>.json  (snapshot, replaced atomically via tmp + rename)
//   - history.jsonl         (append-only JSON Lines)
type fileStore struct {
	log logx.Logger
	dir string

	mu          sync.Mutex
	historyFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Join(dir, "owners"), 0o755); err != nil {
		return nil, err
	}
	hf, err := os.OpenFile(filepath.Join(dir, "history.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir, historyFile: hf}, nil
}

func (s *fileStore) snapshotPath(owner uuid.UUID) string {
	return filepath.Join(s.dir, "owners", owner.String()+".json")
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) Load(ctx context.Context, owner uuid.UUID) (*Snapshot, error) {
	_ = ctx
	b, err := os.ReadFile(s.snapshotPath(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, owner)
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(b)
}

func (s *fileStore) Save(ctx context.Context, snap *Snapshot) error {
	_ = ctx
	if err := validSnapshot(snap); err != nil {
		return err
	}
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.snapshotPath(snap.Owner)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
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
	return os.Rename(tmp, path)
}

func (s *fileStore) Owners(ctx context.Context) ([]uuid.UUID, error) {
	_ = ctx
	entries, err := os.ReadDir(filepath.Join(s.dir, "owners"))
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.log.Debug("storage.skip_file", logx.String("file", name))
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *fileStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.historyFile).Encode(e)
}

func (s *fileStore) History(ctx context.Context, owner uuid.UUID, limit int) ([]HistoryEntry, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(filepath.Join(s.dir, "history.jsonl"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Ring of the last limit matches.
	ring := make([]HistoryEntry, 0, limit)
	next := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e HistoryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.Owner != owner {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, e)
			continue
		}
		ring[next] = e
		next = (next + 1) % limit
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}
