// Package client es el cliente HTTP del gateway, usado por la CLI y el TUI.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
	"github.com/elsanchez/imagine-gateway/internal/storage"
)

// GetDefaultBaseURL retorna la dirección del gateway, configurable con
// IGW_BASE_URL
func GetDefaultBaseURL() string {
	if base := os.Getenv("IGW_BASE_URL"); base != "" {
		return strings.TrimRight(base, "/")
	}
	return "http://127.0.0.1:9563"
}

// Client habla con el gateway por HTTP
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient crea un cliente contra una base URL concreta; apiKey vacía si el
// gateway no exige autenticación
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Sin timeout global: la generación puede tardar minutos y el
		// contexto de cada llamada acota la espera
		http: &http.Client{},
	}
}

// NewDefaultClient crea un cliente con la base URL por defecto y la API key
// de IGW_API_KEY
func NewDefaultClient() *Client {
	return NewClient(GetDefaultBaseURL(), os.Getenv("IGW_API_KEY"))
}

// GenerateRequest es la petición de generación de imágenes
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// ImageData es una imagen generada en la respuesta
type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// GenerateResponse es la respuesta de una generación completa
type GenerateResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// ProgressUpdate es un evento de progreso durante la generación en streaming
type ProgressUpdate struct {
	ImageID   string `json:"image_id"`
	Stage     string `json:"stage"`
	IsFinal   bool   `json:"is_final"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Progress  string `json:"progress"`
}

// apiError es la forma de error que emite el gateway
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do ejecuta la petición y decodifica la respuesta JSON en out (nil para
// descartar el cuerpo)
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w (is the gateway running?)", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var ae apiError
	if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Error.Message != "" {
		return fmt.Errorf("gateway error (%s): %s", ae.Error.Code, ae.Error.Message)
	}
	return fmt.Errorf("gateway returned %s", resp.Status)
}

// Generate pide una generación completa y bloquea hasta el resultado
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/images/generations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateStream pide una generación en streaming. Llama onProgress por cada
// transición de etapa y retorna el resultado final.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onProgress func(ProgressUpdate)) (*GenerateResponse, error) {
	req.Stream = true
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/images/generations", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request stream: %w (is the gateway running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "progress":
				var p ProgressUpdate
				if err := json.Unmarshal([]byte(data), &p); err == nil && onProgress != nil {
					onProgress(p)
				}
			case "complete":
				var result GenerateResponse
				if err := json.Unmarshal([]byte(data), &result); err != nil {
					return nil, fmt.Errorf("decode final event: %w", err)
				}
				return &result, nil
			case "error":
				var fail struct {
					Error string `json:"error"`
				}
				if err := json.Unmarshal([]byte(data), &fail); err != nil {
					return nil, fmt.Errorf("decode error event: %w", err)
				}
				return nil, fmt.Errorf("generation failed: %s", fail.Error)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, fmt.Errorf("stream ended without a final event")
}

// StatusResponse agrupa el estado del pool y la configuración efectiva
type StatusResponse struct {
	Pool   domain.PoolStatus `json:"pool"`
	Config struct {
		RotationStrategy string `json:"rotation_strategy"`
		DailyLimit       int    `json:"daily_limit"`
		RedisEnabled     bool   `json:"redis_enabled"`
		SSOFile          string `json:"sso_file"`
		ImagesDir        string `json:"images_dir"`
		BaseURL          string `json:"base_url"`
		ProxyConfigured  bool   `json:"proxy_configured"`
	} `json:"config"`
}

// Status consulta el estado del pool de credenciales
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/admin/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload recarga el archivo de credenciales y retorna cuántas quedaron
func (c *Client) Reload(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/sso/reload", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ResetUsage reinicia los contadores de uso diario del pool
func (c *Client) ResetUsage(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/sso/reset-usage", nil, nil)
}

// History retorna las generaciones más recientes
func (c *Client) History(ctx context.Context, limit int) ([]domain.GenerationRecord, error) {
	var resp struct {
		History []domain.GenerationRecord `json:"history"`
	}
	path := fmt.Sprintf("/admin/history?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// ListImages retorna las imágenes almacenadas, las más nuevas primero
func (c *Client) ListImages(ctx context.Context, limit int) ([]storage.ImageInfo, error) {
	var resp struct {
		Images []storage.ImageInfo `json:"images"`
	}
	path := fmt.Sprintf("/admin/images/list?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// ClearImages borra las imágenes almacenadas y retorna cuántas eliminó
func (c *Client) ClearImages(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/admin/images/clear", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Health comprueba que el gateway responde
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
