// Package session manages saved browser sessions for sites that require an
// authenticated login before their boards are readable.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/network"
)

// StorageState is a persisted browser session: the cookies of an
// authenticated browsing context, stored as JSON on disk.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
}

// Cookie is one stored browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// FromNetworkCookies converts DevTools cookies into a StorageState.
func FromNetworkCookies(cookies []*network.Cookie) *StorageState {
	state := &StorageState{Cookies: make([]Cookie, 0, len(cookies))}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return state
}

// HTTPCookies converts the stored cookies for use with an http.CookieJar.
func (s *StorageState) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

// Save writes the state as JSON, creating parent directories as needed.
func (s *StorageState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage state: %w", err)
	}
	return nil
}

// Load reads a storage state file.
func Load(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state %s: %w", path, err)
	}
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state %s: %w", path, err)
	}
	return &state, nil
}

// EncodeB64 returns the file's content base64-encoded, suitable for storing
// the whole session as a single environment secret.
func EncodeB64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read storage state %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Ensure materializes the storage state file from a base64 env value when one
// is set, and reports whether a state file exists afterwards. Decoding errors
// propagate; the caller treats them as non-fatal since scrapers can fall back
// to a credential login.
func Ensure(encoded, path string) (bool, error) {
	if encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fileExists(path), fmt.Errorf("failed to decode storage state: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return false, fmt.Errorf("failed to create session directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return false, fmt.Errorf("failed to write storage state: %w", err)
		}
		return true, nil
	}
	return fileExists(path), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
