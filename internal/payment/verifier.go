// Package payment talks to the external payment provider that issues receipts.
package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"go.uber.org/zap"
)

// Verifier checks a receipt against GET {BaseURL}/{receiptID} with a bearer key.
type Verifier struct {
	BaseURL    string
	PrivateKey string
	HTTP       *http.Client
	Log        *zap.Logger
}

func NewVerifier(baseURL, privateKey string, log *zap.Logger) *Verifier {
	return &Verifier{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PrivateKey: privateKey,
		HTTP:       &http.Client{Timeout: 5 * time.Second},
		Log:        log,
	}
}

// Verify reports true on a 2xx answer and false on a 4xx one. Server errors
// and transport failures come back as errors so callers can retry.
func (v *Verifier) Verify(ctx context.Context, receiptID string) (bool, error) {
	if receiptID == "" {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/"+url.PathEscape(receiptID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+v.PrivateKey)
	req.Header.Set("Content-Type", "application/json")

	client := v.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("payment provider: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	log := observability.Logger(v.Log).With(zap.String("receipt_id", receiptID), zap.Int("status", resp.StatusCode))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Info("receipt verified")
		return true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		log.Warn("receipt rejected")
		return false, nil
	default:
		return false, fmt.Errorf("payment provider returned %d", resp.StatusCode)
	}
}
