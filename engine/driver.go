package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/hybridrag"
)

// Step is one planned unit of work. Only the fields relevant to the
// operation are set.
type Step struct {
	Op           Operation            `json:"op"`
	Query        string               `json:"query,omitempty"`
	Label        string               `json:"label,omitempty"`
	Type         string               `json:"type,omitempty"`
	Source       string               `json:"source,omitempty"`
	Target       string               `json:"target,omitempty"`
	Relationship string               `json:"relationship,omitempty"`
	Properties   hybridrag.Properties `json:"properties,omitempty"`
	Weight       float64              `json:"weight,omitempty"`
	MaxDepth     int                  `json:"max_depth,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
}

// Driver turns a conversation into a step plan. The plan is advisory;
// the orchestrator drops steps outside the allowed operations and
// enforces budget and mutation discipline.
type Driver interface {
	Plan(ctx context.Context, req *Request, allowed []Operation) ([]Step, error)
}

// HeuristicDriver is the default deterministic planner. Reads come
// first; mutations are proposed only on explicit creation commands in
// the latest user message:
//
//	/node <label> [type]
//	/edge <source> <target> <relationship> [weight]
type HeuristicDriver struct {
	// MaxLabels bounds how many guessed labels turn into traversal
	// steps, default 3.
	MaxLabels int
}

var _ Driver = (*HeuristicDriver)(nil)

// Plan implements Driver.
func (d *HeuristicDriver) Plan(ctx context.Context, req *Request, allowedOps []Operation) ([]Step, error) {
	msg := req.LatestUserMessage()
	prose, mutations := splitCommands(msg)

	var reads []Step
	if allowed(allowedOps, OpSearchChunks) {
		reads = append(reads, Step{Op: OpSearchChunks, Query: prose})
	}
	if allowed(allowedOps, OpSearchNodes) {
		reads = append(reads, Step{Op: OpSearchNodes, Query: prose})
	}
	if allowed(allowedOps, OpConnectedNodes) {
		maxLabels := d.MaxLabels
		if maxLabels <= 0 {
			maxLabels = 3
		}
		for _, label := range guessLabels(prose, maxLabels) {
			reads = append(reads, Step{Op: OpConnectedNodes, Label: label})
		}
	}
	if allowed(allowedOps, OpGraphSnapshot) && wantsSnapshot(prose) {
		reads = append(reads, Step{Op: OpGraphSnapshot})
	}

	// A mutation needs a successful read before it; make sure the plan
	// contains at least one read when it contains mutations.
	if len(mutations) > 0 && len(reads) == 0 && allowed(allowedOps, OpGraphSnapshot) {
		reads = append(reads, Step{Op: OpGraphSnapshot})
	}

	steps := reads
	for _, step := range mutations {
		if allowed(allowedOps, step.Op) {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// splitCommands separates slash-command lines from prose. Node commands
// always come before edge commands in the returned mutations.
func splitCommands(msg string) (string, []Step) {
	var (
		proseLines []string
		nodes      []Step
		edges      []Step
	)
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "/node ") && len(fields) >= 2:
			step := Step{Op: OpCreateNode, Label: fields[1]}
			if len(fields) >= 3 {
				step.Type = fields[2]
			}
			nodes = append(nodes, step)
		case strings.HasPrefix(line, "/edge ") && len(fields) >= 4:
			step := Step{Op: OpCreateEdge, Source: fields[1], Target: fields[2], Relationship: fields[3]}
			if len(fields) >= 5 {
				if w, err := strconv.ParseFloat(fields[4], 64); err == nil {
					step.Weight = w
				}
			}
			edges = append(edges, step)
		default:
			proseLines = append(proseLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(proseLines, "\n")), append(nodes, edges...)
}

// guessLabels picks capitalized words out of prose as candidate node
// labels, in order of appearance.
func guessLabels(text string, max int) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, word := range strings.Fields(text) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		first, _ := utf8.DecodeRuneInString(word)
		if utf8.RuneCountInString(word) <= 2 || !unicode.IsUpper(first) {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		labels = append(labels, word)
		if len(labels) == max {
			break
		}
	}
	return labels
}

func wantsSnapshot(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range []string{"snapshot", "overview", "visualize", "visualise", "whole graph", "entire graph"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// LLM generates a completion for a prompt. Implementations live behind
// this interface so the planner can be tested without network access.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const planPrompt = `You plan retrieval steps for a knowledge engine.
Allowed operations: %s
Conversation:
%s

Respond with JSON only, in the form:
{"steps": [{"op": "search_chunks", "query": "..."}, {"op": "connected_nodes", "label": "..."}]}

Field reference per op:
- search_chunks, search_nodes: "query"
- connected_nodes: "label", optional "max_depth"
- create_node: "label", optional "type"
- create_edge: "source", "target", "relationship", optional "weight"
- graph_snapshot: no fields

Plan read steps before create steps. Use create steps only when the user
explicitly asks to record something.`

// LLMDriver asks an LLM for a JSON step plan and falls back to the
// heuristic planner when the model is unavailable or returns something
// unparseable.
type LLMDriver struct {
	llm      LLM
	fallback HeuristicDriver
}

var _ Driver = (*LLMDriver)(nil)

// NewLLMDriver creates an LLM-backed planner.
func NewLLMDriver(llm LLM) *LLMDriver {
	return &LLMDriver{llm: llm}
}

// Plan implements Driver.
func (d *LLMDriver) Plan(ctx context.Context, req *Request, allowedOps []Operation) ([]Step, error) {
	opNames := make([]string, len(allowedOps))
	for i, op := range allowedOps {
		opNames[i] = string(op)
	}
	var conv strings.Builder
	for _, m := range req.Messages {
		fmt.Fprintf(&conv, "%s: %s\n", m.Role, m.Content)
	}

	prompt := fmt.Sprintf(planPrompt, strings.Join(opNames, ", "), conv.String())

	response, err := d.llm.Generate(ctx, prompt)
	if err != nil {
		return d.fallback.Plan(ctx, req, allowedOps)
	}

	var plan struct {
		Steps []Step `json:"steps"`
	}
	if err := json.Unmarshal([]byte(extractJSON(response)), &plan); err != nil || len(plan.Steps) == 0 {
		return d.fallback.Plan(ctx, req, allowedOps)
	}

	steps := make([]Step, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if allowed(allowedOps, step.Op) {
			steps = append(steps, step)
		}
	}
	if len(steps) == 0 {
		return d.fallback.Plan(ctx, req, allowedOps)
	}
	return steps, nil
}

// extractJSON strips markdown fences and surrounding chatter from a
// model response, leaving the outermost JSON object.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return response
	}
	return response[start : end+1]
}

// OpenAILLM adapts the OpenAI chat API to the LLM interface.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

var _ LLM = (*OpenAILLM)(nil)

// OpenAILLMOptions configures an OpenAI chat client.
type OpenAILLMOptions struct {
	APIKey  string
	BaseURL string
	Model   string // default gpt-4o-mini
}

// NewOpenAILLM creates the adapter.
func NewOpenAILLM(opts OpenAILLMOptions) *OpenAILLM {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILLM{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate implements LLM.
func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %w", hybridrag.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", hybridrag.ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
