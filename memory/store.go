// Package memory implements the namespaced key-value Memory Store: a
// process-wide store with optional file-backed persistence, atomic
// rename-on-write discipline, and a locking file guard held while loading
// and flushing. Every operation, in any namespace, is serialized by one
// in-process mutex, so Increment is atomic within a process; the file lock
// does not make a read-modify-write atomic across processes.
package memory

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
)

// Format selects the on-disk encoding for a persisted Store.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Options configures a Store's optional file persistence.
type Options struct {
	Namespace string // default namespace used when callers pass ""
	Persist   bool
	File      string
	Format    Format
}

// Store is the engine.MemoryHandle-compatible namespaced key-value store.
// It is safe for concurrent use: reads/writes to every namespace are
// serialized by mu, but ordering across concurrent writers to the same key
// is unspecified beyond Increment's atomicity guarantee.
type Store struct {
	mu   sync.Mutex
	data map[string]map[string]any // namespace -> key -> value
	opts Options
}

// New returns a Store. When opts.Persist is set, data is loaded from
// opts.File if it exists.
func New(opts Options) (*Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	s := &Store{data: make(map[string]map[string]any), opts: opts}
	if opts.Persist && opts.File != "" {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("memory: load %s: %w", opts.File, err)
		}
	}
	return s, nil
}

func (s *Store) ns(namespace string) string {
	if namespace == "" {
		return s.opts.Namespace
	}
	return namespace
}

func (s *Store) nsMap(namespace string) map[string]any {
	ns := s.ns(namespace)
	m, ok := s.data[ns]
	if !ok {
		m = make(map[string]any)
		s.data[ns] = m
	}
	return m
}

// Get returns a namespaced value, the engine.MemoryHandle-compatible
// single-namespace accessor. Use GetNS for an explicit namespace.
func (s *Store) Get(key string) (any, bool) { return s.GetNS("", key) }

// Has reports whether key exists in the default namespace.
func (s *Store) Has(key string) bool { return s.HasNS("", key) }

// Set stores val under key in the default namespace.
func (s *Store) Set(key string, val any) { s.SetNS("", key, val) }

// Increment atomically adds delta to the integer stored at key (0 if
// absent) in the default namespace and returns the new value.
func (s *Store) Increment(key string, delta int64) int64 { return s.IncrementNS("", key, delta) }

// Append adds val to a list stored at key in the default namespace,
// creating the list if absent.
func (s *Store) Append(key string, val any) { s.AppendNS("", key, val) }

// List returns a copy of every key/value in the default namespace.
func (s *Store) List() map[string]any { return s.ListNS("") }

// GetNS returns the value stored at key in namespace.
func (s *Store) GetNS(namespace, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.nsMap(namespace)[key]
	return v, ok
}

// HasNS reports whether key exists in namespace.
func (s *Store) HasNS(namespace, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nsMap(namespace)[key]
	return ok
}

// SetNS stores val under key in namespace, persisting if configured.
func (s *Store) SetNS(namespace, key string, val any) {
	s.mu.Lock()
	s.nsMap(namespace)[key] = val
	s.mu.Unlock()
	s.persistBestEffort()
}

// IncrementNS atomically adds delta to the integer at key in namespace.
func (s *Store) IncrementNS(namespace, key string, delta int64) int64 {
	s.mu.Lock()
	m := s.nsMap(namespace)
	cur, _ := toInt64(m[key])
	next := cur + delta
	m[key] = next
	s.mu.Unlock()
	s.persistBestEffort()
	return next
}

// AppendNS appends val to the list at key in namespace.
func (s *Store) AppendNS(namespace, key string, val any) {
	s.mu.Lock()
	m := s.nsMap(namespace)
	list, _ := m[key].([]any)
	m[key] = append(list, val)
	s.mu.Unlock()
	s.persistBestEffort()
}

// ClearNS removes every key in namespace ("" clears every namespace).
func (s *Store) ClearNS(namespace string) {
	s.mu.Lock()
	if namespace == "" {
		s.data = make(map[string]map[string]any)
	} else {
		delete(s.data, namespace)
	}
	s.mu.Unlock()
	s.persistBestEffort()
}

// ListNS returns a shallow copy of namespace's contents.
func (s *Store) ListNS(namespace string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.nsMap(namespace)
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// persistBestEffort writes the store to disk when persistence is enabled.
// Errors are non-fatal (MemoryError per the error taxonomy): the in-memory
// view is still consistent, so a write failure is reported to the caller of
// Flush, not surfaced from every mutating call.
func (s *Store) persistBestEffort() {
	if !s.opts.Persist || s.opts.File == "" {
		return
	}
	_ = s.Flush()
}

// Flush writes the current contents to opts.File using an exclusive file
// lock and atomic rename-on-write: data is written to a temp file in the
// same directory, then renamed over the destination.
func (s *Store) Flush() error {
	if !s.opts.Persist || s.opts.File == "" {
		return nil
	}

	lock := flock.New(s.opts.File + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("memory: acquire lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	s.mu.Lock()
	snapshot := make(map[string]map[string]any, len(s.data))
	for ns, m := range s.data {
		cp := make(map[string]any, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snapshot[ns] = cp
	}
	s.mu.Unlock()

	var payload []byte
	var err error
	switch s.opts.Format {
	case FormatCSV:
		payload, err = encodeCSV(snapshot)
	default:
		payload, err = json.MarshalIndent(snapshot, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}

	dir := filepath.Dir(s.opts.File)
	tmp, err := os.CreateTemp(dir, ".memory-*.tmp")
	if err != nil {
		return fmt.Errorf("memory: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("memory: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("memory: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.opts.File); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("memory: rename temp file: %w", err)
	}
	return nil
}

func (s *Store) load() error {
	lock := flock.New(s.opts.File + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	raw, err := os.ReadFile(s.opts.File)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	var decoded map[string]map[string]any
	switch s.opts.Format {
	case FormatCSV:
		decoded, err = decodeCSV(raw)
	default:
		err = json.Unmarshal(raw, &decoded)
	}
	if err != nil {
		return err
	}
	s.data = decoded
	return nil
}

// encodeCSV renders namespace/key/value rows with a header, JSON-encoding
// any value that isn't already a plain scalar.
func encodeCSV(snapshot map[string]map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"namespace", "key", "value"}); err != nil {
		return nil, err
	}
	for ns, m := range snapshot {
		for k, v := range m {
			enc, err := encodeCSVValue(v)
			if err != nil {
				return nil, err
			}
			if err := w.Write([]string{ns, k, enc}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCSVValue(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func decodeCSV(raw []byte) (map[string]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any)
	for i, row := range rows {
		if i == 0 || len(row) != 3 {
			continue // header or malformed row
		}
		ns, key, val := row[0], row[1], row[2]
		if out[ns] == nil {
			out[ns] = make(map[string]any)
		}
		var decoded any
		if err := json.Unmarshal([]byte(val), &decoded); err == nil {
			out[ns][key] = decoded
		} else {
			out[ns][key] = val
		}
	}
	return out, nil
}
