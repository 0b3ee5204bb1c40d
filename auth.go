package speechmatics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// tempTokenTTL is the lifetime requested for temporary keys, in seconds.
const tempTokenTTL = 60

// GetTempToken exchanges a long-lived API key for a short-lived one via the
// management platform. Used when ConnectionSettings.GenerateTempToken is
// set; SaaS accounts are expected to connect with temporary keys.
func GetTempToken(ctx context.Context, settings ConnectionSettings) (string, error) {
	mpURL := os.Getenv("SM_MANAGEMENT_PLATFORM_URL")
	if mpURL == "" {
		mpURL = ManagementPlatformURL
	}

	payload, err := json.Marshal(map[string]any{"ttl": tempTokenTTL})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api_keys?type=rt&sm-sdk=%s", mpURL, sdkTag(false))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", settings.AuthToken))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request temporary token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var key struct {
		KeyValue string `json:"key_value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return "", fmt.Errorf("failed to decode temporary token response: %w", err)
	}
	return key.KeyValue, nil
}
