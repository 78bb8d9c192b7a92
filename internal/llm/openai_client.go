package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskpilot/internal/agent/ports"
	taskerrors "taskpilot/internal/errors"
	"taskpilot/internal/httpclient"
	"taskpilot/internal/logging"
	id "taskpilot/internal/utils/id"
)

// Config carries provider connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// MaxTokens is the default completion cap applied when a request does
	// not set its own.
	MaxTokens int
	Headers   map[string]string
}

// OpenAI API compatible client
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

// NewOpenAIClient constructs an LLM client that speaks the OpenAI-compatible
// chat completions API using the provided configuration.
func NewOpenAIClient(model string, config Config) (ports.LLMClient, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	logger := logging.NewComponentLogger("llm-openai")

	return &openaiClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		maxTokens:  config.MaxTokens,
		httpClient: httpclient.NewWithCircuitBreaker(timeout, logger, "llm"),
		logger:     logger,
		headers:    config.Headers,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	ctx, requestID := id.EnsureRequestID(ctx)
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := c.marshalRequest(req, false)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%sPOST %s/chat/completions model=%s stream=false", prefix, c.baseURL, c.model)

	resp, err := c.post(ctx, body)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError response (%d): %s", prefix, resp.StatusCode, string(respBody))
		return nil, taskerrors.FromHTTPStatus(resp.StatusCode, string(respBody))
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
				FunctionCall *struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function_call"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		c.logger.Debug("%sFailed to decode response: %v", prefix, err)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		errMsg := oaiResp.Error.Message
		if oaiResp.Error.Type != "" {
			errMsg = fmt.Sprintf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message)
		}
		return nil, taskerrors.FromHTTPStatus(resp.StatusCode, errMsg)
	}

	if len(oaiResp.Choices) == 0 {
		c.logger.Debug("%sNo choices in response", prefix)
		return nil, taskerrors.NewTransientError(errors.New("no choices in response"), "The model returned an empty response. Please retry.")
	}

	choice := oaiResp.Choices[0]
	result := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
		Metadata: map[string]any{
			"request_id": requestID,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		call := ports.ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			c.logger.Debug("%sFailed to parse tool call arguments: %v", prefix, err)
		} else {
			call.Arguments = args
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}

	// Legacy function_call responses are folded into the same tool-call shape.
	if fc := choice.Message.FunctionCall; fc != nil && len(result.ToolCalls) == 0 {
		call := ports.ToolCall{
			Name:         fc.Name,
			RawArguments: fc.Arguments,
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err == nil {
			call.Arguments = args
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}

	c.logger.Debug("%sstop=%s content=%dchars tool_calls=%d tokens=%d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls), result.Usage.TotalTokens)

	return result, nil
}

// StreamComplete streams incremental completion deltas while constructing the
// final aggregated response.
func (c *openaiClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	ctx, requestID := id.EnsureRequestID(ctx)
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	body, err := c.marshalRequest(req, true)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%sPOST %s/chat/completions model=%s stream=true", prefix, c.baseURL, c.model)

	requestStarted := time.Now()
	resp, err := c.post(ctx, body)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		c.logger.Debug("%sError response (%d): %s", prefix, resp.StatusCode, string(respBody))
		return nil, taskerrors.FromHTTPStatus(resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	type streamChunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
				Role    string `json:"role"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	var contentBuilder strings.Builder
	usage := ports.TokenUsage{}
	finishReason := ""
	loggedTTFB := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		if !loggedTTFB {
			loggedTTFB = true
			c.logger.Debug("%sttfb=%v model=%s", prefix, time.Since(requestStarted), c.model)
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("%sFailed to decode stream chunk: %v", prefix, err)
			continue
		}

		if chunk.Usage != nil {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
			usage.TotalTokens = chunk.Usage.TotalTokens
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		if text := choice.Delta.Content; text != "" {
			contentBuilder.WriteString(text)
			if callbacks.OnContentDelta != nil {
				callbacks.OnContentDelta(ports.ContentDelta{Delta: text})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Debug("%sStream read error: %v", prefix, err)
		return nil, fmt.Errorf("read response stream: %w", err)
	}

	if callbacks.OnContentDelta != nil {
		callbacks.OnContentDelta(ports.ContentDelta{Final: true})
	}

	result := &ports.CompletionResponse{
		Content:    contentBuilder.String(),
		StopReason: finishReason,
		Usage:      usage,
		Metadata: map[string]any{
			"request_id": requestID,
		},
	}

	c.logger.Debug("%sstream done stop=%s content=%dchars tokens=%d",
		prefix, result.StopReason, len(result.Content), result.Usage.TotalTokens)

	return result, nil
}

func (c *openaiClient) marshalRequest(req ports.CompletionRequest, stream bool) ([]byte, error) {
	oaiReq := map[string]any{
		"model":    c.model,
		"messages": convertMessages(req.Messages),
		"stream":   stream,
	}
	if req.Temperature > 0 {
		oaiReq["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oaiReq["max_tokens"] = req.MaxTokens
	} else if c.maxTokens > 0 {
		oaiReq["max_tokens"] = c.maxTokens
	}
	if len(req.StopSequences) > 0 {
		oaiReq["stop"] = append([]string(nil), req.StopSequences...)
	}
	if len(req.Tools) > 0 {
		oaiReq["tools"] = convertTools(req.Tools)
		if req.ToolChoice != "" {
			oaiReq["tool_choice"] = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice},
			}
		} else {
			oaiReq["tool_choice"] = "auto"
		}
	}
	return json.Marshal(oaiReq)
}

func (c *openaiClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	endpoint := c.baseURL + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	return c.httpClient.Do(httpReq)
}

func convertMessages(msgs []ports.Message) []map[string]any {
	result := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}
	return result
}

func convertTools(tools []ports.ToolDefinition) []map[string]any {
	converted := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		converted = append(converted, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return converted
}

func wrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if taskerrors.IsTransient(err) || taskerrors.IsPermanent(err) {
		return err
	}
	return taskerrors.NewTransientError(err, "The model provider could not be reached. Please retry.")
}
