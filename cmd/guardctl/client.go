package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type consoleClient struct {
	http *resty.Client
}

func newConsoleClient(addr, apiKey, token string) *consoleClient {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	c := resty.New().
		SetBaseURL(base).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	if token != "" {
		c.SetAuthToken(token)
	}
	return &consoleClient{http: c}
}

// APIError — ответ console API со статусом не 2xx.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil && body.Error != "" {
		return fmt.Sprintf("console API %d: %s", e.Code, body.Error)
	}
	return fmt.Sprintf("console API %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// do выполняет запрос и возвращает тело ответа как есть.
func (c *consoleClient) do(ctx context.Context, method, path string, query map[string]string, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx).SetQueryParams(query)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Code: resp.StatusCode(), Body: resp.String()}
	}
	return resp.Body(), nil
}

// printJSON печатает ответ с отступами; невалидный JSON печатается как есть.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
