// Package messages owns the four flat-file message lists the bot draws from.
package messages

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// Category names one message list.
type Category string

const (
	Default      Category = "default"
	Mention      Category = "mention"
	DefaultAudio Category = "default_audio"
	MentionAudio Category = "mention_audio"
)

// Categories lists every category in display order.
var Categories = []Category{Default, Mention, DefaultAudio, MentionAudio}

var (
	// ErrUnknownCategory is returned for names outside Categories.
	ErrUnknownCategory = errors.New("unknown message category")
	// ErrUnstorable is returned for text that would not survive a reload:
	// blank after normalization or read back as a comment.
	ErrUnstorable = errors.New("message cannot be stored as a list entry")
)

// Normalize folds text into the single trimmed line a list file holds.
// Line breaks become single spaces and blank lines are dropped.
func Normalize(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// Storable reports whether text reads back unchanged after Normalize.
func Storable(text string) bool {
	n := Normalize(text)
	return n != "" && !strings.HasPrefix(n, "#")
}

// ParseCategory maps a user-supplied name to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Categories {
		if k == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Title is the human name used in command output ("Default messages").
func (c Category) Title() string {
	switch c {
	case Default:
		return "Default messages"
	case Mention:
		return "Mention messages"
	case DefaultAudio:
		return "Default audio messages"
	case MentionAudio:
		return "Mention audio messages"
	}
	return string(c)
}

// Label is the short lowercase name ("default audio").
func (c Category) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

type list struct {
	mu      sync.Mutex
	path    string
	entries []string
}

// Store holds the in-memory lists and their backing files. Each category has
// its own mutex held across read-modify-write, so Add and Reload on the same
// category never interleave.
type Store struct {
	lists map[Category]*list

	reloadMu   sync.RWMutex
	lastReload time.Time
	now        func() time.Time
}

// NewStore creates a Store for the given category→file mapping. Categories
// without a path are kept in memory only. Call LoadAll before use.
func NewStore(paths map[Category]string) *Store {
	s := &Store{lists: make(map[Category]*list, len(Categories)), now: time.Now}
	for _, c := range Categories {
		s.lists[c] = &list{path: paths[c]}
	}
	return s
}

// LoadAll reads every backing file, creating missing ones empty. A failure
// on one category is logged and leaves that category empty.
func (s *Store) LoadAll() {
	for _, c := range Categories {
		l := s.lists[c]
		l.mu.Lock()
		entries, err := readList(l.path)
		if err != nil {
			log.ApplicationLogger().Error("Failed to load message list", "category", string(c), "path", l.path, "error", err)
			entries = nil
		}
		l.entries = entries
		l.mu.Unlock()
	}
	s.reloadMu.Lock()
	s.lastReload = s.now()
	s.reloadMu.Unlock()
}

// Reload replaces in-memory state with the current file contents.
func (s *Store) Reload() map[Category]int {
	s.LoadAll()
	counts := s.Counts()
	log.ApplicationLogger().Info("Message lists reloaded",
		"default", counts[Default],
		"mention", counts[Mention],
		"default_audio", counts[DefaultAudio],
		"mention_audio", counts[MentionAudio],
	)
	return counts
}

// ReloadTask adapts Reload to the task router's handler signature.
func (s *Store) ReloadTask(_ context.Context, _ any) error {
	s.Reload()
	return nil
}

// LastReload reports when the lists were last read from disk.
func (s *Store) LastReload() time.Time {
	s.reloadMu.RLock()
	defer s.reloadMu.RUnlock()
	return s.lastReload
}

// Add normalizes text and appends it to category c unless an identical
// entry exists, then rewrites the backing file. It reports whether text was
// added. If the file cannot be written the in-memory append is undone.
func (s *Store) Add(text string, c Category) (bool, error) {
	l, ok := s.lists[c]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	if !Storable(text) {
		return false, ErrUnstorable
	}
	text = Normalize(text)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e == text {
			return false, nil
		}
	}
	l.entries = append(l.entries, text)
	if err := writeList(l.path, l.entries); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return false, fmt.Errorf("persist %s list: %w", c, err)
	}
	return true, nil
}

// Counts returns the current size of every category without I/O.
func (s *Store) Counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		l := s.lists[c]
		l.mu.Lock()
		out[c] = len(l.entries)
		l.mu.Unlock()
	}
	return out
}

// List returns a copy of category c in insertion order.
func (s *Store) List(c Category) []string {
	l, ok := s.lists[c]
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the size of category c.
func (s *Store) Len(c Category) int {
	l, ok := s.lists[c]
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Random picks a uniformly random entry from c. intn defaults to rand.IntN.
func (s *Store) Random(c Category, intn func(int) int) (string, bool) {
	l, ok := s.lists[c]
	if !ok {
		return "", false
	}
	if intn == nil {
		intn = rand.IntN
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "", false
	}
	return l.entries[intn(len(l.entries))], true
}

// Path returns the backing file of c.
func (s *Store) Path(c Category) string {
	if l, ok := s.lists[c]; ok {
		return l.path
	}
	return ""
}

func readList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := ensureFile(path); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func ensureFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	log.ApplicationLogger().Info("Created empty message file", "path", path)
	return f.Close()
}

// writeList replaces path atomically with one entry per line.
func writeList(path string, entries []string) error {
	if path == "" {
		return nil
	}
	var b bytes.Buffer
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
