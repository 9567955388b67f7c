package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/pkg/models"
)

// Config configures a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration

	// DiscoveryTimeout bounds how long Models() waits for a live
	// ListFoundationModels call before falling back to the static list.
	// Zero disables discovery entirely.
	DiscoveryTimeout time.Duration
}

// Provider implements agent.LLMProvider against the Bedrock Converse
// streaming API. It serves Claude, Titan, Llama, Mistral and Cohere
// models hosted on Bedrock under one wire protocol.
type Provider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration

	discoveryCfg     DiscoveryConfig
	discoveryTimeout time.Duration
}

// New builds a Provider using the given region and optional explicit
// credentials; an empty AccessKeyID falls back to the default AWS
// credential chain (env, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Provider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,

		discoveryCfg: DiscoveryConfig{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		},
		discoveryTimeout: cfg.DiscoveryTimeout,
	}, nil
}

func (p *Provider) Name() string        { return "bedrock" }
func (p *Provider) SupportsTools() bool { return true }

// Models returns the account's actual Bedrock model access via
// DiscoverModels when discovery is enabled (DiscoveryTimeout > 0),
// falling back to a static list covering the same model families when
// discovery is disabled, times out, or the account/network call fails.
func (p *Provider) Models() []agent.Model {
	if p.discoveryTimeout <= 0 {
		return p.staticModels()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.discoveryTimeout)
	defer cancel()

	cfg := p.discoveryCfg
	defs, err := DiscoverModels(ctx, &cfg)
	if err != nil || len(defs) == 0 {
		return p.staticModels()
	}

	models := make([]agent.Model, 0, len(defs))
	for _, d := range defs {
		models = append(models, agent.Model{
			ID:          d.ID,
			Name:        d.Name,
			ContextSize: d.ContextWindow,
		})
	}
	return models
}

// staticModels is the default/offline fallback list, covering the same
// model families the teacher's own Models() hardcodes.
func (p *Provider) staticModels() []agent.Model {
	return []agent.Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000},
		{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express", ContextSize: 8192},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextSize: 32768},
		{ID: "cohere.command-r-plus-v1:0", Name: "Command R+ (Bedrock)", ContextSize: 128000},
	}
}

func (p *Provider) model(req *agent.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// Complete streams a completion via ConverseStream. The returned channel
// is closed after the final chunk.
func (p *Provider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("bedrock: client not initialized")
	}

	model := p.model(req)
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 {
		converseReq.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		converseReq.ToolConfig = toolConfig
	}

	var out *bedrockruntime.ConverseStreamOutput
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		out, err = p.client.ConverseStream(ctx, converseReq)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("bedrock: %w", err)
		}
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: max retries exceeded: %w", err)
	}

	chunks := make(chan *agent.CompletionChunk)
	go processStream(ctx, out, chunks)
	return chunks, nil
}

func processStream(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)

	eventStream := out.GetStream()
	defer eventStream.Close()

	var currentCall *models.ToolCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int

	events := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		case event, ok := <-events:
			if !ok {
				if err := eventStream.Err(); err != nil {
					chunks <- &agent.CompletionChunk{Error: fmt.Errorf("bedrock: %w", err), Done: true}
				} else {
					chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentCall = &models.ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					currentInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- &agent.CompletionChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						currentInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentCall != nil {
					var args map[string]any
					if currentInput.Len() > 0 {
						_ = json.Unmarshal([]byte(currentInput.String()), &args)
					}
					currentCall.Arguments = args
					chunks <- &agent.CompletionChunk{ToolCall: currentCall}
					currentCall = nil
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					if ev.Value.Usage.InputTokens != nil {
						inputTokens = int(*ev.Value.Usage.InputTokens)
					}
					if ev.Value.Usage.OutputTokens != nil {
						outputTokens = int(*ev.Value.Usage.OutputTokens)
					}
				}
			}
		}
	}
}

func convertMessages(messages []agent.CompletionMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(map[string]any(tc.Arguments)),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, nil
}

func convertTools(tools []agent.ToolDefinition) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"throttlingexception", "toomanyrequestsexception", "serviceunavailableexception",
		"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
