package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.records.snapshot.json (periodic snapshot)
//   - <prefix>.records.journal.jsonl (append-only journal, fsynced per put)
//   - <prefix>.lock                  (run-exclusive lock file)
//
// The journal is periodically compacted into the snapshot. On open, the
// snapshot is loaded and the journal replayed over it, so a crash between
// compactions loses nothing.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	records      map[string]Record

	writes int
	lock   runLock
}

const compactEvery = 256

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	snapPath := prefix + ".records.snapshot.json"
	journalPath := prefix + ".records.journal.jsonl"

	records := map[string]Record{}
	if err := loadSnapshot(snapPath, records); err != nil && !os.IsNotExist(err) {
		log.Warn("state snapshot unreadable, relying on journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, records); err != nil && !os.IsNotExist(err) {
		log.Warn("state journal replay incomplete", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		records:      records,
		lock:         runLock{path: prefix + ".lock"},
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.compactLocked()
	cerr := s.journalFile.Close()
	s.journalFile = nil
	_ = s.lock.release()
	if err != nil {
		return err
	}
	return cerr
}

func (s *fileStore) Lock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.acquire(ctx)
}

func (s *fileStore) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.release()
}

func (s *fileStore) Get(ctx context.Context, cat event.Category, entityID string) (Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(string(cat), entityID)]
	return rec, ok, nil
}

func (s *fileStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	if strings.TrimSpace(rec.EntityID) == "" {
		return fmt.Errorf("%w: put with empty entity id", ErrUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return fmt.Errorf("%w: store closed", ErrUnavailable)
	}

	// Journal first, then the in-memory map: a put that returned nil must
	// survive an abrupt kill.
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return fmt.Errorf("%w: journal append: %v", ErrUnavailable, err)
	}
	if err := s.journalFile.Sync(); err != nil {
		return fmt.Errorf("%w: journal sync: %v", ErrUnavailable, err)
	}
	s.records[key(string(rec.Category), rec.EntityID)] = rec

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Scan(ctx context.Context, cat event.Category) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, 16)
	for _, rec := range s.records {
		if rec.Category == cat {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *fileStore) GC(ctx context.Context, olderThan time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, fmt.Errorf("%w: store closed", ErrUnavailable)
	}

	removed := 0
	for k, rec := range s.records {
		if rec.LastSeenAt.Before(olderThan) {
			delete(s.records, k)
			removed++
		}
	}
	if removed > 0 {
		if err := s.compactLocked(); err != nil {
			return removed, fmt.Errorf("%w: gc compact: %v", ErrUnavailable, err)
		}
		s.log.Info("state gc", logx.Int("removed", removed), logx.Time("older_than", olderThan))
	}
	return removed, nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.records); err != nil {
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
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Record
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// A torn tail line from a crash mid-append is expected; later
			// lines cannot exist past a torn one, so stop here.
			return nil
		}
		if rec.EntityID == "" {
			continue
		}
		out[key(string(rec.Category), rec.EntityID)] = rec
	}
	return sc.Err()
}
