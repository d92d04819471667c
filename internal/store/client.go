package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Client — HTTP клиент к реляционному хранилищу за REST-интерфейсом
// (строчные фильтры в query, Prefer-заголовки для insert/upsert).
// Хранилище не предоставляет межтабличных транзакций, поэтому атомарность
// собирается выше, в саге персистентности.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает клиент хранилища. baseURL указывает на корень REST API
// (например "https://db.internal/rest/v1").
func NewClient(baseURL, serviceKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("StoreClient"),
	}
}

// Eq формирует фильтр равенства для query-параметра.
func Eq(value string) string {
	return "eq." + value
}

// InsertOptions управляет поведением вставки.
type InsertOptions struct {
	// Upsert включает merge-on-conflict по колонке OnConflict.
	Upsert     bool
	OnConflict string
	// ReturnRepresentation запрашивает вставленные строки в ответе
	// (иначе minimal).
	ReturnRepresentation bool
}

// Select выполняет GET по таблице с фильтрами и декодирует массив строк в out.
func (c *Client) Select(ctx context.Context, table string, filters map[string]string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, table, filters, nil)
	if err != nil {
		return err
	}
	return c.do(req, table, out)
}

// Insert выполняет POST новой строки (или пакета строк) в таблицу.
// out может быть nil — тогда запрашивается минимальный ответ.
func (c *Client) Insert(ctx context.Context, table string, payload interface{}, opts InsertOptions, out interface{}) error {
	params := map[string]string{}
	if opts.Upsert && opts.OnConflict != "" {
		params["on_conflict"] = opts.OnConflict
	}
	req, err := c.newRequest(ctx, http.MethodPost, table, params, payload)
	if err != nil {
		return err
	}

	prefer := "return=minimal"
	if opts.ReturnRepresentation || out != nil {
		prefer = "return=representation"
	}
	if opts.Upsert {
		prefer += ",resolution=merge-duplicates"
	}
	req.Header.Set("Prefer", prefer)

	return c.do(req, table, out)
}

// Update выполняет PATCH строк, подпадающих под фильтры, и декодирует
// обновленные строки в out (из-за return=representation вызывающий код может
// проверить, сколько строк реально совпало).
func (c *Client) Update(ctx context.Context, table string, filters map[string]string, payload interface{}, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPatch, table, filters, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=representation")
	return c.do(req, table, out)
}

// Delete удаляет строки, подпадающие под фильтры.
func (c *Client) Delete(ctx context.Context, table string, filters map[string]string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, table, filters, nil)
	if err != nil {
		return err
	}
	return c.do(req, table, nil)
}

func (c *Client) newRequest(ctx context.Context, method, table string, params map[string]string, payload interface{}) (*http.Request, error) {
	endpointURL := c.baseURL + "/" + table
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		endpointURL += "?" + q.Encode()
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal store payload for %s: %w", table, err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create store request for %s: %w", table, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Сервисный ключ дает полный доступ, источником аутентификации
	// пользователя хранилище здесь не является.
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	return req, nil
}

func (c *Client) do(req *http.Request, table string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Store request failed", zap.String("table", table), zap.String("method", req.Method), zap.Error(err))
		return fmt.Errorf("store request to %s failed: %w", table, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", models.ErrConflict, table)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error("Store returned non-2xx status",
			zap.String("table", table),
			zap.String("method", req.Method),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", bodyBytes),
		)
		return fmt.Errorf("store returned status %d for %s", resp.StatusCode, table)
	}

	if readErr != nil {
		return fmt.Errorf("failed to read store response for %s: %w", table, readErr)
	}
	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode store response for %s: %w", table, err)
	}
	return nil
}
