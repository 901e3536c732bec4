// Package notifier tells the campaign API that a campaign has been fully
// delivered.
package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
	apperrors "campaignd/pkg/errors"
	"campaignd/pkg/metrics"
)

const maxErrorBody = 512

type Notifier interface {
	Notify(ctx context.Context, campaignID string) error
}

// HTTPNotifier sends PUT {base}/campaigns/sent/{campaignID}. Each call is a
// single attempt; callers decide whether to retry.
type HTTPNotifier struct {
	client  *http.Client
	baseURL string
	apiKey  string
	header  string
	logger  logger.Logger
}

func NewHTTPNotifier(cfg config.NotifierConfig, log logger.Logger) *HTTPNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = constants.DefaultAPIKeyHeader
	}
	return &HTTPNotifier{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		header:  header,
		logger:  log,
	}
}

func (n *HTTPNotifier) endpoint(campaignID string) string {
	return n.baseURL + "/campaigns/sent/" + url.PathEscape(campaignID)
}

func (n *HTTPNotifier) Notify(ctx context.Context, campaignID string) error {
	start := time.Now()
	endpoint := n.endpoint(campaignID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		metrics.ObserveNotifierRequest("error", time.Since(start))
		return notificationError(campaignID, 0, fmt.Errorf("failed to create request: %w", err))
	}
	if n.apiKey != "" {
		req.Header.Set(n.header, n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.ObserveNotifierRequest("error", time.Since(start))
		return notificationError(campaignID, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.ObserveNotifierRequest(fmt.Sprintf("%dxx", resp.StatusCode/100), time.Since(start))
		n.logger.WarnwCtx(ctx, "Campaign API rejected completion notice",
			"campaign_id", campaignID,
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(body)),
		)
		return notificationError(campaignID, resp.StatusCode, fmt.Errorf("campaign API returned status %d", resp.StatusCode))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.ObserveNotifierRequest("2xx", time.Since(start))
	n.logger.DebugwCtx(ctx, "Campaign completion notice accepted",
		"campaign_id", campaignID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func notificationError(campaignID string, status int, cause error) error {
	err := apperrors.ErrNotification.
		WithStage(apperrors.StageNotify).
		WithDetail("campaign_id", campaignID).
		WithCause(cause)
	if status != 0 {
		err = err.WithDetail("status_code", status)
	}
	return err
}
