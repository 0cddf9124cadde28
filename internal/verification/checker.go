// Package verification resolves the KYC fact for an account. Two producers
// exist for the same boolean: a backend status poll and the attestation
// contract's event log. Either firing is sufficient; firing twice is a no-op
// at the consumer (the onboarding coordinator's mark-verified transition).
package verification

import (
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

// Checker polls the backend status endpoint. This is the recovery path for a
// returning session that missed the attestation event.
type Checker struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewChecker(baseURL string, logger zerolog.Logger) *Checker {
	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With().Str("component", "verification").Logger(),
	}
}

type statusResponse struct {
	Verified bool `json:"verified"`
}

// Status reports whether account is verified. Failures come back as
// VerificationCheckFailed; callers treat them as "not yet verified".
func (c *Checker) Status(ctx context.Context, account string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/verification-status/"+url.PathEscape(account), nil)
	if err != nil {
		return false, faults.VerificationCheckFailed(err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return false, faults.VerificationCheckFailed(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return false, faults.VerificationCheckFailed(fmt.Errorf("status endpoint returned %d", res.StatusCode))
	}

	var resp statusResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return false, faults.VerificationCheckFailed(err)
	}
	return resp.Verified, nil
}
