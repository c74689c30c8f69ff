package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const pathScan = "/scan"

type scanRequest struct {
	URL string `json:"url"`
}

type scanResponse struct {
	URL     string `json:"url"`
	Verdict string `json:"verdict"`
}

// ScanClient — клиент внешнего сервиса классификации ссылок.
type ScanClient struct {
	http *resty.Client
}

func NewScanClient(baseURL string, timeout time.Duration) *ScanClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &ScanClient{http: c}
}

// Classify возвращает сырое значение verdict из ответа сервиса.
// Сравнение с сентинелом делает вызывающий.
func (c *ScanClient) Classify(ctx context.Context, link string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(scanRequest{URL: link}).
		Post(pathScan)
	if err != nil {
		return "", fmt.Errorf("classify: %w: %v", ErrScanUnavailable, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
			Cause:      &StatusError{Op: "classify", Code: resp.StatusCode(), Body: resp.String()},
		}
	}
	if !resp.IsSuccess() {
		return "", &StatusError{Op: "classify", Code: resp.StatusCode(), Body: resp.String()}
	}

	var out scanResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}
	return out.Verdict, nil
}

// parseRetryAfter понимает только секунды; дата или мусор дают 1s.
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
