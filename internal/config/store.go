package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/secret"
)

// Store holds the current Settings and persists them to a JSON or YAML file.
// Writers are not coordinated with in-flight runs: a run reads a Snapshot at
// its start and later changes apply to the next run.
type Store struct {
	path string
	box  *secret.Box
	log  zerolog.Logger

	mu       sync.RWMutex
	cur      Settings
	lastJSON []byte

	// OnChange, when set, is called after a successful reload from disk.
	OnChange func(Settings)
}

// NewStore returns a store for path. box may be nil, in which case the token
// is written in clear.
func NewStore(path string, box *secret.Box) *Store {
	return &Store{path: path, box: box, log: zerolog.Nop(), cur: DefaultSettings()}
}

func (s *Store) SetLogger(l zerolog.Logger) { s.log = l }

func (s *Store) Path() string { return s.path }

// Load reads the file over the defaults. A missing file is not an error.
func (s *Store) Load() (Settings, error) {
	st, raw, err := s.parse()
	if err != nil {
		return Settings{}, err
	}
	s.commit(st, raw)
	return st, nil
}

// Snapshot returns the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update merges patch (keys as in the settings file) into the current
// settings, validates the result and writes the file with mode 0600.
func (s *Store) Update(patch map[string]any) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := json.Marshal(s.cur)
	if err != nil {
		return Settings{}, err
	}
	var merged map[string]any
	if err := json.Unmarshal(cur, &merged); err != nil {
		return Settings{}, err
	}
	for k, v := range patch {
		merged[k] = v
	}
	mb, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, err
	}
	next, err := decodeSettings(mb, true)
	if err != nil {
		return Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.write(next); err != nil {
		return Settings{}, err
	}
	s.cur = next
	s.lastJSON, _ = json.Marshal(next)
	return next, nil
}

func (s *Store) parse() (Settings, []byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		st := DefaultSettings()
		raw, _ := json.Marshal(st)
		return st, raw, nil
	}
	if err != nil {
		return Settings{}, nil, err
	}
	jb, err := toJSON(s.path, b)
	if err != nil {
		return Settings{}, nil, err
	}
	st, err := decodeSettings(jb, false)
	if err != nil {
		return Settings{}, nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if extra := unknownKeys(jb); len(extra) > 0 {
		s.log.Warn().Str("path", s.path).Strs("keys", extra).Msg("ignoring unknown settings keys")
	}
	if secret.IsSealed(st.Token) {
		if s.box == nil {
			return Settings{}, nil, fmt.Errorf("%s: token is sealed but SECRET_KEY is not set", s.path)
		}
		if st.Token, err = s.box.Open(st.Token); err != nil {
			return Settings{}, nil, err
		}
	}
	raw, _ := json.Marshal(st)
	return st, raw, nil
}

// decodeSettings decodes JSON over the defaults, rejecting trailing data.
// Unknown keys are rejected only when strict.
func decodeSettings(jb []byte, strict bool) (Settings, error) {
	st := DefaultSettings()
	if len(bytes.TrimSpace(jb)) == 0 {
		return st, nil
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&st); err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Settings{}, fmt.Errorf("invalid settings: trailing data")
		}
		return Settings{}, err
	}
	return st, nil
}

// unknownKeys lists the top-level keys of jb that Settings does not define,
// sorted.
func unknownKeys(jb []byte) []string {
	var doc, known map[string]json.RawMessage
	if json.Unmarshal(jb, &doc) != nil {
		return nil
	}
	kb, _ := json.Marshal(DefaultSettings())
	_ = json.Unmarshal(kb, &known)
	var out []string
	for k := range doc {
		if _, ok := known[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) commit(st Settings, raw []byte) {
	s.mu.Lock()
	s.cur = st
	s.lastJSON = raw
	s.mu.Unlock()
}

// write replaces the file atomically.
func (s *Store) write(st Settings) error {
	if s.box != nil && st.Token != "" {
		sealed, err := s.box.Seal(st.Token)
		if err != nil {
			return err
		}
		st.Token = sealed
	}
	j, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	out, err := fromJSON(s.path, j)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Watch reloads the settings when the file changes on disk until ctx ends.
// Events are debounced; a file that fails to parse is logged and ignored.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, s.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Str("path", s.path).Msg("settings watch error")
		}
	}
}

func (s *Store) reload() {
	st, raw, err := s.parse()
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("settings reload failed")
		return
	}
	s.mu.RLock()
	unchanged := bytes.Equal(raw, s.lastJSON)
	s.mu.RUnlock()
	if unchanged {
		return
	}
	s.commit(st, raw)
	s.log.Info().Str("path", s.path).Msg("settings reloaded")
	if s.OnChange != nil {
		s.OnChange(st)
	}
}
