// Package registrar binds human-readable labels to owner addresses under a
// fixed parent name. Client is the consumer side, talking to the relay;
// Directory is the relay's upstream surface.
package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"letspay/internal/faults"

	"github.com/rs/zerolog"
)

// Name is one registered label binding.
type Name struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// FullName derives the display name for a label under a parent namespace.
func FullName(label, parent string) string {
	return strings.ToLower(label) + "." + parent
}

// Client calls the name relay. All failures surface as RegistrarUnavailable;
// callers decide whether to retry or fall back to cached values.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With().Str("component", "registrar").Logger(),
	}
}

type availabilityResponse struct {
	Available bool   `json:"available"`
	Subname   string `json:"subname"`
}

// Available reports whether label is free under the parent namespace.
func (c *Client) Available(ctx context.Context, label string) (bool, error) {
	var resp availabilityResponse
	path := "/ens-availability/" + url.PathEscape(strings.ToLower(label))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

type registerRequest struct {
	Label string `json:"label"`
	Owner string `json:"owner"`
}

type registerResponse struct {
	Success bool  `json:"success"`
	Subname *Name `json:"subname"`
}

// Register claims label for owner and returns the assigned full name.
func (c *Client) Register(ctx context.Context, label, owner string) (Name, error) {
	body, _ := json.Marshal(registerRequest{Label: strings.ToLower(label), Owner: owner})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register-subname", bytes.NewReader(body))
	if err != nil {
		return Name{}, faults.RegistrarUnavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return Name{}, faults.RegistrarUnavailable(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Name{}, faults.RegistrarUnavailable(fmt.Errorf("register-subname returned %d", res.StatusCode))
	}

	var resp registerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return Name{}, faults.RegistrarUnavailable(err)
	}
	if !resp.Success || resp.Subname == nil {
		return Name{}, faults.RegistrarUnavailable(fmt.Errorf("registration not confirmed"))
	}
	// Ownership mismatch on the returned record is treated as a registrar
	// failure until product intent is settled.
	if !strings.EqualFold(resp.Subname.Owner, owner) {
		return Name{}, faults.RegistrarUnavailable(fmt.Errorf("registered owner %s does not match %s", resp.Subname.Owner, owner))
	}
	return *resp.Subname, nil
}

type subnamesResponse struct {
	Subnames []Name `json:"subnames"`
}

// NamesOwnedBy lists names registered to owner, most recent first. Callers
// use only the first entry.
func (c *Client) NamesOwnedBy(ctx context.Context, owner string) ([]Name, error) {
	var resp subnamesResponse
	if err := c.getJSON(ctx, "/ens-subnames/"+url.PathEscape(owner), &resp); err != nil {
		return nil, err
	}
	return resp.Subnames, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return faults.RegistrarUnavailable(err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return faults.RegistrarUnavailable(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return faults.RegistrarUnavailable(fmt.Errorf("%s returned %d", path, res.StatusCode))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return faults.RegistrarUnavailable(err)
	}
	return nil
}
