package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SunoClient submits audio-generation tasks to the Suno proxy API. Results
// come back asynchronously through the configured callback URL.
type SunoClient struct {
	BaseURL     string
	APIKey      string
	CallbackURL string

	HTTPClient *http.Client
}

func NewSunoClient(baseURL, apiKey, callbackURL string) *SunoClient {
	return &SunoClient{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		CallbackURL: callbackURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sunoGenerateRequest struct {
	Model        string `json:"model"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Title        string `json:"title"`
	Style        string `json:"style"`
	Prompt       string `json:"prompt"`
	CallbackURL  string `json:"callBackUrl"`
}

type sunoGenerateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// SubmitTask launches a generation task and returns its opaque handle. The
// response must carry a success code and a non-empty task id.
func (s *SunoClient) SubmitTask(ctx context.Context, title, stylePrompt, lyrics string) (string, error) {
	payload, err := json.Marshal(sunoGenerateRequest{
		Model:       "V4_5",
		CustomMode:  true,
		Title:       title,
		Style:       stylePrompt,
		Prompt:      lyrics,
		CallbackURL: s.CallbackURL,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("suno request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("suno response: %w", err)
	}

	var parsed sunoGenerateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("suno response decode: %w", err)
	}
	if parsed.Code != 200 || parsed.Data.TaskID == "" {
		return "", fmt.Errorf("suno rejected task: code=%d msg=%q", parsed.Code, parsed.Msg)
	}
	return parsed.Data.TaskID, nil
}
