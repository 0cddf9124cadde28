package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Directory is the upstream namespace service the relay delegates to.
type Directory interface {
	CreateSubname(ctx context.Context, label, owner string) (Name, error)
	IsAvailable(ctx context.Context, fullName string) (bool, error)
	ListByOwner(ctx context.Context, parent, owner string) ([]Name, error)
}

// NamespaceDirectory talks to the hosted offchain namespace API.
type NamespaceDirectory struct {
	baseURL    string
	apiKey     string
	parentName string
	http       *http.Client
}

func NewNamespaceDirectory(baseURL, apiKey, parentName string) *NamespaceDirectory {
	return &NamespaceDirectory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		parentName: parentName,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *NamespaceDirectory) CreateSubname(ctx context.Context, label, owner string) (Name, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"label":      label,
		"parentName": d.parentName,
		"owner":      owner,
		"addresses": []map[string]string{
			{"value": owner, "chain": "ethereum"},
		},
	})

	var created Name
	if err := d.do(ctx, http.MethodPost, "/subnames", payload, &created); err != nil {
		return Name{}, err
	}
	if created.Name == "" {
		created.Name = FullName(label, d.parentName)
	}
	if created.Owner == "" {
		created.Owner = owner
	}
	return created, nil
}

func (d *NamespaceDirectory) IsAvailable(ctx context.Context, fullName string) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	path := "/subnames/availability/" + url.PathEscape(fullName)
	if err := d.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

func (d *NamespaceDirectory) ListByOwner(ctx context.Context, parent, owner string) ([]Name, error) {
	var resp struct {
		Items []Name `json:"items"`
	}
	path := fmt.Sprintf("/subnames?parentName=%s&owner=%s", url.QueryEscape(parent), url.QueryEscape(owner))
	if err := d.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (d *NamespaceDirectory) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", d.apiKey)

	res, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("namespace api %s %s returned %d", method, path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// MemoryDirectory serves tests and local development without the hosted API.
type MemoryDirectory struct {
	mu    sync.Mutex
	names map[string]Name // keyed by full name
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{names: make(map[string]Name)}
}

func (m *MemoryDirectory) CreateSubname(_ context.Context, label, owner string) (Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	full := FullName(label, "letspay.eth")
	if _, taken := m.names[full]; taken {
		return Name{}, fmt.Errorf("subname %s is taken", full)
	}
	n := Name{Name: full, Owner: owner}
	m.names[full] = n
	return n, nil
}

func (m *MemoryDirectory) IsAvailable(_ context.Context, fullName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, taken := m.names[strings.ToLower(fullName)]
	return !taken, nil
}

func (m *MemoryDirectory) ListByOwner(_ context.Context, _ string, owner string) ([]Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Name
	for _, n := range m.names {
		if strings.EqualFold(n.Owner, owner) {
			out = append(out, n)
		}
	}
	return out, nil
}
