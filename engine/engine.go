package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/hybridrag"
	"github.com/smallnest/hybridrag/log"
	"github.com/smallnest/hybridrag/traverse"
	"github.com/smallnest/hybridrag/vector"
)

// FlaggedEmbedder is implemented by embedders that can report a degraded
// result, such as embed.Resilient. When the configured embedder does not
// implement it, results are never flagged.
type FlaggedEmbedder interface {
	EmbedFlagged(ctx context.Context, text string) ([]float32, bool, error)
}

// Options tunes orchestrator behavior. The zero value gets defaults.
type Options struct {
	// StepBudget caps the number of executed steps per request,
	// default 8. Excess steps are truncated and the response is
	// marked partial.
	StepBudget int

	// StepTimeout bounds each step, default 10s.
	StepTimeout time.Duration

	// SearchLimit caps similarity search results per step, default 5.
	SearchLimit int

	// ScoreThreshold is the strict lower bound on similarity,
	// default 0.7.
	ScoreThreshold float64

	// MaxTraversalDepth bounds connected-node discovery, default 3.
	MaxTraversalDepth int

	// SnapshotNodeCap bounds snapshot size, default 50.
	SnapshotNodeCap int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.StepBudget <= 0 {
		opts.StepBudget = 8
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 10 * time.Second
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	if opts.ScoreThreshold == 0 {
		opts.ScoreThreshold = 0.7
	}
	if opts.MaxTraversalDepth <= 0 {
		opts.MaxTraversalDepth = 3
	}
	if opts.SnapshotNodeCap <= 0 {
		opts.SnapshotNodeCap = 50
	}
	return opts
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Graph     hybridrag.GraphStore
	Documents hybridrag.DocumentStore
	Index     *vector.Index
	Embedder  hybridrag.Embedder
	Driver    Driver // default HeuristicDriver
	Logger    log.Logger
	Options   Options
}

// Orchestrator executes retrieval requests. Safe for concurrent use as
// long as its collaborators are.
type Orchestrator struct {
	graph     hybridrag.GraphStore
	documents hybridrag.DocumentStore
	index     *vector.Index
	embedder  hybridrag.Embedder
	driver    Driver
	logger    log.Logger
	opts      Options
}

// New creates an orchestrator from the config.
func New(cfg Config) *Orchestrator {
	driver := cfg.Driver
	if driver == nil {
		driver = &HeuristicDriver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		graph:     cfg.Graph,
		documents: cfg.Documents,
		index:     cfg.Index,
		embedder:  cfg.Embedder,
		driver:    driver,
		logger:    logger,
		opts:      cfg.Options.withDefaults(),
	}
}

// execution carries per-request state through the step loop.
type execution struct {
	readDone   bool
	provenance []Provenance
	failed     []StepError
}

// Handle runs one request through the full lifecycle. Validation
// failures return an error with no side effects; step failures do not,
// they are isolated into Response.FailedSteps and the request still
// reaches the done state.
func (o *Orchestrator) Handle(ctx context.Context, req *Request) (*Response, error) {
	resp := &Response{State: StateReceived}

	if err := req.Validate(); err != nil {
		resp.State = StateFailed
		return resp, err
	}
	resp.State = StateValidated
	allowedOps := Capabilities(req.Mode)

	steps, err := o.driver.Plan(ctx, req, allowedOps)
	if err != nil {
		resp.State = StateFailed
		return resp, fmt.Errorf("plan request: %w", err)
	}

	if len(steps) > o.opts.StepBudget {
		o.logger.Warn("step plan of %d truncated to budget %d", len(steps), o.opts.StepBudget)
		steps = steps[:o.opts.StepBudget]
		resp.Partial = true
	}

	resp.State = StateExecuting
	exec := &execution{}
	for _, step := range steps {
		// Steps outside the mode's capabilities are dropped without
		// provenance, as if never planned.
		if !allowed(allowedOps, step.Op) {
			continue
		}
		o.runStep(ctx, exec, step)
	}

	resp.State = StateAssembling
	resp.Provenance = exec.provenance
	resp.FailedSteps = exec.failed
	resp.Answer = o.assemble(req, exec)

	resp.State = StateDone
	return resp, nil
}

// runStep executes one step under its own timeout and folds the result
// into the execution. Errors never escape; they become failed steps.
func (o *Orchestrator) runStep(ctx context.Context, exec *execution, step Step) {
	if IsMutation(step.Op) && !exec.readDone {
		exec.failed = append(exec.failed, StepError{
			Operation: step.Op,
			Input:     step.Label,
			Err:       hybridrag.ErrInvalidRequest,
			Message:   "mutation refused before a successful read",
		})
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
	defer cancel()

	entry, err := o.executeStep(stepCtx, step)
	if err != nil {
		o.logger.Debug("step %s failed: %v", step.Op, err)
		exec.failed = append(exec.failed, StepError{
			Operation: step.Op,
			Input:     stepInput(step),
			Err:       err,
			Message:   err.Error(),
		})
		return
	}
	if !IsMutation(step.Op) {
		exec.readDone = true
	}
	exec.provenance = append(exec.provenance, *entry)
}

func stepInput(step Step) string {
	switch step.Op {
	case OpSearchChunks, OpSearchNodes:
		return step.Query
	case OpConnectedNodes:
		return step.Label
	case OpCreateNode:
		return step.Label
	case OpCreateEdge:
		return fmt.Sprintf("%s -[%s]-> %s", step.Source, step.Relationship, step.Target)
	default:
		return ""
	}
}

func (o *Orchestrator) executeStep(ctx context.Context, step Step) (*Provenance, error) {
	switch step.Op {
	case OpSearchChunks:
		return o.searchStep(ctx, step, vector.ScopeChunks, SourceVectorIndex)
	case OpSearchNodes:
		return o.searchStep(ctx, step, vector.ScopeNodes, SourceVectorIndex)
	case OpConnectedNodes:
		return o.connectedStep(ctx, step)
	case OpCreateNode:
		return o.createNodeStep(ctx, step)
	case OpCreateEdge:
		return o.createEdgeStep(ctx, step)
	case OpGraphSnapshot:
		return o.snapshotStep(ctx)
	default:
		return nil, fmt.Errorf("unknown operation %q: %w", step.Op, hybridrag.ErrInvalidRequest)
	}
}

func (o *Orchestrator) embedQuery(ctx context.Context, text string) ([]float32, bool, error) {
	if flagged, ok := o.embedder.(FlaggedEmbedder); ok {
		return flagged.EmbedFlagged(ctx, text)
	}
	vec, err := o.embedder.Embed(ctx, text)
	return vec, false, err
}

func (o *Orchestrator) searchStep(ctx context.Context, step Step, scope vector.Scope, source string) (*Provenance, error) {
	if step.Query == "" {
		return nil, fmt.Errorf("search query is empty: %w", hybridrag.ErrInvalidRequest)
	}

	query, degraded, err := o.embedQuery(ctx, step.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := step.Limit
	if limit <= 0 {
		limit = o.opts.SearchLimit
	}
	matches, err := o.index.Search(ctx, query, scope, o.opts.ScoreThreshold, limit)
	if err != nil {
		return nil, err
	}

	entry := &Provenance{
		Operation: step.Op,
		Source:    source,
		Inputs:    map[string]any{"query": step.Query, "threshold": o.opts.ScoreThreshold, "limit": limit},
		Degraded:  degraded,
	}
	for _, match := range matches {
		switch {
		case match.Chunk != nil:
			entry.Outputs = append(entry.Outputs, fmt.Sprintf("[%.2f] %s", match.Score, match.Chunk.Content))
		case match.Node != nil:
			entry.Outputs = append(entry.Outputs, fmt.Sprintf("[%.2f] %s (%s)", match.Score, match.Node.Label, match.Node.Type))
		}
	}
	if len(entry.Outputs) == 0 {
		entry.Outputs = []string{"no result found"}
	}
	return entry, nil
}

func (o *Orchestrator) connectedStep(ctx context.Context, step Step) (*Provenance, error) {
	startID, err := o.resolveNode(ctx, step.Label)
	if err != nil {
		return nil, err
	}

	maxDepth := step.MaxDepth
	if maxDepth <= 0 {
		maxDepth = o.opts.MaxTraversalDepth
	}
	reachable, err := traverse.Connected(ctx, o.graph, startID, maxDepth)
	if err != nil {
		return nil, err
	}

	entry := &Provenance{
		Operation: step.Op,
		Source:    SourceTraversal,
		Inputs:    map[string]any{"start": step.Label, "max_depth": maxDepth},
	}
	for _, r := range reachable {
		entry.Outputs = append(entry.Outputs,
			fmt.Sprintf("%s (%s) at depth %d via %s", r.Node.Label, r.Node.Type, r.Depth, strings.Join(r.Path, " -> ")))
	}
	if len(entry.Outputs) == 0 {
		entry.Outputs = []string{"no result found"}
	}
	return entry, nil
}

func (o *Orchestrator) createNodeStep(ctx context.Context, step Step) (*Provenance, error) {
	node, err := o.graph.CreateNode(ctx, step.Label, step.Type, step.Properties)
	if err != nil {
		return nil, err
	}
	return &Provenance{
		Operation: step.Op,
		Source:    SourceGraphStore,
		Inputs:    map[string]any{"label": step.Label, "type": step.Type},
		Outputs:   []string{fmt.Sprintf("created node %s (%s)", node.Label, node.ID)},
	}, nil
}

func (o *Orchestrator) createEdgeStep(ctx context.Context, step Step) (*Provenance, error) {
	sourceID, err := o.resolveNode(ctx, step.Source)
	if err != nil {
		return nil, err
	}
	targetID, err := o.resolveNode(ctx, step.Target)
	if err != nil {
		return nil, err
	}

	edge, err := o.graph.CreateEdge(ctx, sourceID, targetID, step.Relationship, step.Properties, step.Weight)
	if err != nil {
		return nil, err
	}
	return &Provenance{
		Operation: step.Op,
		Source:    SourceGraphStore,
		Inputs:    map[string]any{"source": step.Source, "target": step.Target, "relationship": step.Relationship},
		Outputs:   []string{fmt.Sprintf("created edge %s -[%s]-> %s", step.Source, edge.Relationship, step.Target)},
	}, nil
}

func (o *Orchestrator) snapshotStep(ctx context.Context) (*Provenance, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entry := &Provenance{
		Operation: OpGraphSnapshot,
		Source:    SourceGraphStore,
		Inputs:    map[string]any{"node_cap": o.opts.SnapshotNodeCap},
	}
	for _, node := range snap.Nodes {
		entry.Outputs = append(entry.Outputs, fmt.Sprintf("%s (%s)", node.Label, node.Type))
	}
	if len(entry.Outputs) == 0 {
		entry.Outputs = []string{"no result found"}
	}
	return entry, nil
}

// resolveNode accepts either a node id or a label. Labels stay usable
// in plans, ids win when both match, and execution-time resolution is
// what lets a create_edge step see nodes created earlier in the same
// request.
func (o *Orchestrator) resolveNode(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("node reference is empty: %w", hybridrag.ErrInvalidRequest)
	}
	if node, err := o.graph.GetNode(ctx, ref); err == nil {
		return node.ID, nil
	} else if !errors.Is(err, hybridrag.ErrNotFound) {
		return "", err
	}
	node, err := o.graph.FindNodeByLabel(ctx, ref)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// assemble builds the answer text from provenance, grouped by source.
func (o *Orchestrator) assemble(req *Request, exec *execution) string {
	if len(exec.provenance) == 0 {
		if len(exec.failed) > 0 {
			return "No results; every step failed."
		}
		return "No retrieval steps were planned for this request."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", req.LatestUserMessage())
	for _, entry := range exec.provenance {
		fmt.Fprintf(&b, "\n[%s via %s", entry.Operation, entry.Source)
		if entry.Degraded {
			b.WriteString(", degraded")
		}
		b.WriteString("]\n")
		for _, out := range entry.Outputs {
			fmt.Fprintf(&b, "- %s\n", out)
		}
	}
	if len(exec.failed) > 0 {
		fmt.Fprintf(&b, "\n%d step(s) failed and were skipped.\n", len(exec.failed))
	}
	return b.String()
}
