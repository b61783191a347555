package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
)

const (
	defaultHTTPTimeout    = 5 * time.Minute
	defaultHTTPAttempts   = 3
	defaultHTTPRetryDelay = 500 * time.Millisecond
)

// HTTPExecutor вызывает REST-микросервис шага.
//
// Отправляет POST {"pipelineId", "step"} на URL из Endpoints.
// Ответ 2xx/3xx — SUCCESS, 4xx — FAILED без повторов.
// Сетевые ошибки и 5xx повторяются до Attempts раз с экспоненциальной задержкой,
// после чего шаг считается FAILED.
type HTTPExecutor struct {
	// Endpoints — URL микросервиса по имени шага.
	Endpoints map[string]string

	// Client — HTTP клиент (default: http.DefaultClient).
	Client *http.Client

	// Timeout — таймаут одной попытки (default: 5m).
	Timeout time.Duration

	// Attempts — количество попыток (default: 3).
	Attempts uint

	// RetryDelay — начальная задержка между попытками (default: 500ms).
	RetryDelay time.Duration
}

// Execute вызывает микросервис шага.
func (e *HTTPExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	url, ok := e.Endpoints[task.Step]
	if !ok {
		return &ExecutionResult{Error: fmt.Sprintf("%v: %s", ErrNoEndpoint, task.Step)}, nil
	}

	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	attempts := e.Attempts
	if attempts == 0 {
		attempts = defaultHTTPAttempts
	}
	delay := e.RetryDelay
	if delay <= 0 {
		delay = defaultHTTPRetryDelay
	}

	var (
		status   int
		respBody []byte
	)
	err = retry.Do(func() error {
		code, data, err := e.call(ctx, url, body)
		if err != nil {
			return err
		}
		status, respBody = code, data
		if code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, code, truncate(string(data), 200))
		}
		return nil
	},
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)

	// Отмена — результат неизвестен, шаг не завершаем
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outputs := map[string]any{"url": url}
	if status != 0 {
		outputs["status_code"] = status
	}

	if err != nil {
		return &ExecutionResult{Outputs: outputs, Error: err.Error()}, nil
	}
	if status >= http.StatusBadRequest {
		return &ExecutionResult{
			Outputs: outputs,
			Error:   fmt.Sprintf("HTTP %d: %s", status, truncate(string(respBody), 200)),
		}, nil
	}

	return &ExecutionResult{Outputs: outputs}, nil
}

// call выполняет одну попытку запроса.
func (e *HTTPExecutor) call(ctx context.Context, url string, body []byte) (int, []byte, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, retry.Unrecoverable(fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err))
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}
	return resp.StatusCode, data, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Не разрезаем многобайтовый символ
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
