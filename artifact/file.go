package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const counterFile = "counter.txt"

// FileStore 将每条记录写成 <dir>/<name>.json，编号保存在 counter.txt。
type FileStore struct {
	dir  string
	user string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(dir, user string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{dir: dir, user: user, now: time.Now}, nil
}

func (s *FileStore) Save(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID()
	if err != nil {
		return Record{}, err
	}
	rec = prepare(rec, id, s.user, s.now())
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("encode artifact: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, rec.Name+".json"), data); err != nil {
		return Record{}, fmt.Errorf("write artifact %s: %w", rec.Name, err)
	}
	return rec, nil
}

// nextID 先持久化计数器再返回，保证每次保存最多分配一个编号。
func (s *FileStore) nextID() (int64, error) {
	path := filepath.Join(s.dir, counterFile)
	var last int64
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if txt := strings.TrimSpace(string(data)); txt != "" {
			if last, err = strconv.ParseInt(txt, 10, 64); err != nil {
				return 0, fmt.Errorf("corrupt counter %s: %w", path, err)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return 0, fmt.Errorf("read counter: %w", err)
	}
	next := last + 1
	if err := writeFileAtomic(path, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}
	return next, nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sortByID(names)
	return names, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Record, error) {
	names, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	name, ok := matchName(names, id)
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return Record{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return rec, nil
}

func matchName(names []string, id string) (string, bool) {
	for _, n := range names {
		if n == id {
			return n, true
		}
	}
	want, ok := parseID(id)
	if !ok {
		return "", false
	}
	for _, n := range names {
		if got, ok := parseID(n); ok && got == want {
			return n, true
		}
	}
	return "", false
}

func sortByID(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, _ := parseID(names[i])
		b, _ := parseID(names[j])
		return a < b
	})
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
