package tables

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FileJar is a cookie jar whose cookies for one server survive between
// command invocations.
type FileJar struct {
	*cookiejar.Jar

	mu   sync.Mutex
	path string
	base *url.URL
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OpenJar loads cookies for baseURL from path. A missing file yields an
// empty jar; an empty path yields a jar that never persists.
func OpenJar(path, baseURL string) (*FileJar, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	jar := &FileJar{Jar: inner, path: path, base: base}
	if path == "" {
		return jar, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jar, nil
		}
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		// A corrupt file only costs a fresh login.
		return jar, nil
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return jar, nil
}

// Save writes the server's cookies back to disk.
func (j *FileJar) Save() error {
	if j == nil || j.path == "" {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var saved []savedCookie
	for _, c := range j.Cookies(j.base) {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}
