// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package brain

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/conductor/pkg/httpclient"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions Brain.
// BaseURL defaults to OpenAI's own API but any Chat Completions-compatible
// endpoint (Azure OpenAI, local proxies, vLLM, etc.) can be pointed at.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Client      *httpclient.Client // nil builds a default with standard retry/backoff
}

// OpenAI is a Brain backed by an OpenAI-compatible chat/completions
// streaming endpoint. Grounded on hector's original pkg/llms/openai.go,
// trimmed to the Chat Completions wire shape (skipping the Responses API's
// reasoning-summary retry dance, which this module's agents don't need)
// and rebuilt on pkg/httpclient.Client for retry/backoff instead of a bare
// http.Client.
type OpenAI struct {
	cfg    OpenAIConfig
	client *httpclient.Client
}

// NewOpenAI constructs an OpenAI Brain.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	client := cfg.Client
	if client == nil {
		client = httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders))
	}
	return &OpenAI{cfg: cfg, client: client}
}

func (o *OpenAI) Name() string { return fmt.Sprintf("openai:%s", o.cfg.Model) }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolCallFunc `json:"function"`
}

type openAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage"`
}

type openAIStreamChoice struct {
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openAIStreamDelta struct {
	Content   string                 `json:"content"`
	ToolCalls []openAIStreamToolCall `json:"tool_calls"`
}

type openAIStreamToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id"`
	Function openAIToolCallFunc `json:"function"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (o *OpenAI) buildRequest(req Request) openAIChatRequest {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openAIToolCall{
				ID: tc.ID, Type: "function",
				Function: openAIToolCallFunc{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		messages = append(messages, om)
	}

	tools := make([]openAITool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openAITool{
			Type: t.Type,
			Function: openAIToolFunction{
				Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters,
			},
		})
	}

	return openAIChatRequest{
		Model: o.cfg.Model, Messages: messages, Tools: tools,
		Temperature: o.cfg.Temperature, MaxTokens: o.cfg.MaxTokens, Stream: true,
	}
}

// Stream posts req to the chat/completions endpoint with stream=true and
// translates server-sent-event "data: {...}" lines into Chunks.
func (o *OpenAI) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(o.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("brain/openai: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("brain/openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			var errBody bytes.Buffer
			errBody.ReadFrom(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("brain/openai: %s: %s: %w", resp.Status, errBody.String(), err)
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errBody bytes.Buffer
		errBody.ReadFrom(resp.Body)
		return nil, fmt.Errorf("brain/openai: %s: %s", resp.Status, errBody.String())
	}

	out := make(chan Chunk)
	go o.pump(resp.Body, out)
	return out, nil
}

func (o *OpenAI) pump(body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var openCallIndex = -1
	var finishReason string
	var usage *Usage

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = &Usage{
				PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens: chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			out <- Chunk{Kind: ChunkTextDelta, TextDelta: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			delta := ToolCallDelta{NameDelta: tc.Function.Name, ArgumentDelta: tc.Function.Arguments}
			if tc.Index != openCallIndex {
				delta.CallID = tc.ID
				openCallIndex = tc.Index
			}
			out <- Chunk{Kind: ChunkToolCallDelta, ToolCallDelta: delta}
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if err := scanner.Err(); err != nil {
		out <- Chunk{Kind: ChunkFinish, FinishReason: FinishError, Err: err}
		return
	}

	out <- Chunk{Kind: ChunkFinish, FinishReason: mapFinishReason(finishReason), Usage: usage}
}

func mapFinishReason(r string) FinishReason {
	switch r {
	case "tool_calls":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "":
		return FinishStop
	default:
		return FinishStop
	}
}
