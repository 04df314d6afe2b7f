// Package tokenstore persists bearer tokens. The bearer token is the only
// state that survives a restart: "remember me" sessions go to the
// file-backed store, everything else stays in process memory.
package tokenstore

import (
	"encoding/json"
	"os"
	"sync"
)

// Memory holds tokens for the lifetime of the process only.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewMemory creates an empty ephemeral store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]struct{})}
}

// Save implements port.TokenStore.
func (m *Memory) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = struct{}{}
	return nil
}

// Delete implements port.TokenStore.
func (m *Memory) Delete(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

// List implements port.TokenStore.
func (m *Memory) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tokens))
	for t := range m.tokens {
		out = append(out, t)
	}
	return out, nil
}

// File persists tokens as a JSON array on disk. Writes go through a
// temp-file rename so a crash never leaves a torn file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a durable store at path. The file is created lazily on
// the first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() ([]string, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		// Corrupt store: treat as empty rather than blocking login.
		return nil, nil
	}
	return tokens, nil
}

func (f *File) write(tokens []string) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Save implements port.TokenStore.
func (f *File) Save(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t == token {
			return nil
		}
	}
	return f.write(append(tokens, token))
}

// Delete implements port.TokenStore.
func (f *File) Delete(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens, err := f.load()
	if err != nil {
		return err
	}
	out := tokens[:0]
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return f.write(out)
}

// List implements port.TokenStore.
func (f *File) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}
