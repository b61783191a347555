package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из API, CLI не импортирует internal-пакеты сервера) ---

// StepResponse — шаг pipeline.
type StepResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PipelineResponse — запись pipeline из API.
type PipelineResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Steps       []StepResponse `json:"steps"`
	CurrentStep int            `json:"currentStep"`
	CreatedAt   string         `json:"createdAt"`
	UpdatedAt   string         `json:"updatedAt"`
}

// EventResponse — запись журнала переходов.
type EventResponse struct {
	ID         int64  `json:"id"`
	PipelineID string `json:"pipelineId"`
	Type       string `json:"type"`
	Step       string `json:"step,omitempty"`
	StepIndex  int    `json:"stepIndex"`
	CreatedAt  string `json:"createdAt"`
}

// CatalogEntry — шаг из каталога.
type CatalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CatalogResponse — каталог шагов.
type CatalogResponse struct {
	Steps  []CatalogEntry `json:"steps"`
	Strict bool           `json:"strict"`
}

// --- Request types ---

// ExecuteRequest — запуск pipeline.
type ExecuteRequest struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// StepUpdateRequest — уведомление о завершении шага.
type StepUpdateRequest struct {
	PipelineID string `json:"pipelineId"`
	StepName   string `json:"stepName"`
	Status     string `json:"status"`
}

// --- API response wrappers ---

type executeResponse struct {
	PipelineID string `json:"pipelineId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conductor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipelines ---

// StartPipeline запускает pipeline и возвращает его ID.
func (c *Client) StartPipeline(name string, steps []string) (string, error) {
	var resp executeResponse
	err := c.post("/pipeline/execute", ExecuteRequest{Name: name, Steps: steps}, &resp)
	return resp.PipelineID, err
}

// GetPipeline возвращает запись pipeline.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/pipeline/status/"+url.PathEscape(id), &p)
	return &p, err
}

// UpdateStep сообщает о завершении текущего шага.
func (c *Client) UpdateStep(req StepUpdateRequest) (string, error) {
	var resp messageResponse
	err := c.post("/pipeline/step/update", req, &resp)
	return resp.Message, err
}

// History возвращает журнал переходов pipeline.
func (c *Client) History(id string) ([]EventResponse, error) {
	var events []EventResponse
	err := c.list("/pipeline/history/"+url.PathEscape(id), &events)
	return events, err
}

// Steps возвращает каталог шагов.
func (c *Client) Steps() (*CatalogResponse, error) {
	var cat CatalogResponse
	err := c.get("/pipeline/steps", &cat)
	return &cat, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, result any) error {
	var lr listResponse
	if err := c.doData(http.MethodGet, path, nil, &lr); err != nil {
		return err
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
