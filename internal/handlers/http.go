package handlers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Cascade/internal/domain"
)

const (
	// HandlerTypeHTTP — тип HTTP handler'а.
	HandlerTypeHTTP = "http"

	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации HTTP handler'а.
const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configInto            = "into"
	configFollowRedirects = "follow_redirects"
	configValidateSSL     = "validate_ssl"
	configTimeoutSec      = "timeout_sec"
)

// HTTPHandler — handler HTTP запроса.
//
// Выполняет HTTP запрос к внешнему API и пишет результат в состояние.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {
//	        "Content-Type": "application/json",
//	        "Authorization": "Bearer {{ .State.token }}"
//	    },
//	    "body": {"data": "{{ .State.items }}"},
//	    "into": "api_response",
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30
//	}
//
// Delta — одно поле с именем into (по умолчанию "<step_id>_response"):
//
//	{
//	    "api_response": {
//	        "status_code": 200,
//	        "headers": {"Content-Type": "application/json"},
//	        "body": {...}  // parsed JSON или string
//	    }
//	}
type HTTPHandler struct {
	client *http.Client
}

// NewHTTPHandler создаёт новый HTTPHandler.
func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Type возвращает тип handler'а.
func (h *HTTPHandler) Type() string {
	return HandlerTypeHTTP
}

// Execute выполняет HTTP запрос.
func (h *HTTPHandler) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg, err := h.parseConfig(req)
	if err != nil {
		return nil, err
	}

	client := h.buildClient(cfg, req.Timeout)

	httpReq, err := h.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandlerCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return h.parseResponse(resp, cfg.Into)
}

// httpConfig — распарсенная конфигурация HTTP handler'а.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	Into            string
	FollowRedirects bool
	ValidateSSL     bool
	TimeoutSec      int
}

// parseConfig парсит конфигурацию HTTP handler'а.
func (h *HTTPHandler) parseConfig(req *Request) (*httpConfig, error) {
	config := req.Config
	cfg := &httpConfig{
		Method:          GetConfigString(config, configMethod),
		URL:             GetConfigString(config, configURL),
		Headers:         GetConfigMapString(config, configHeaders),
		Body:            config[configBody],
		Into:            GetConfigString(config, configInto),
		FollowRedirects: GetConfigBool(config, configFollowRedirects, true),
		ValidateSSL:     GetConfigBool(config, configValidateSSL, true),
		TimeoutSec:      GetConfigInt(config, configTimeoutSec),
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, HandlerTypeHTTP)
	}

	// Метод по умолчанию — GET
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	// Целевое поле в состоянии уникально для шага, чтобы сиблинги
	// одного раунда не конфликтовали по записям
	if cfg.Into == "" {
		cfg.Into = req.StepID + "_response"
	}

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func (h *HTTPHandler) buildClient(cfg *httpConfig, reqTimeout time.Duration) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	if reqTimeout > 0 {
		timeout = reqTimeout
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: !cfg.ValidateSSL,
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
}

// buildRequest создаёт HTTP запрос.
func (h *HTTPHandler) buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := h.serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func (h *HTTPHandler) serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse собирает Response из HTTP ответа.
func (h *HTTPHandler) parseResponse(resp *http.Response, into string) (*Response, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Невалидный JSON возвращаем как строку
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &Response{
		Delta: domain.Delta{
			into: map[string]any{
				"status_code": resp.StatusCode,
				"headers":     headers,
				"body":        body,
			},
		},
	}, nil
}
