package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicPlanVectorMode(t *testing.T) {
	d := &HeuristicDriver{}
	req := userRequest(ModeVector, "what powers the Saturn rocket")

	steps, err := d.Plan(context.Background(), req, Capabilities(ModeVector))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, OpSearchChunks, steps[0].Op)
	assert.Equal(t, "what powers the Saturn rocket", steps[0].Query)
}

func TestHeuristicPlanHybridReadsBeforeMutations(t *testing.T) {
	d := &HeuristicDriver{}
	req := userRequest(ModeHybrid, "Tell me about Apollo\n/node Skylab station")

	steps, err := d.Plan(context.Background(), req, Capabilities(ModeHybrid))
	require.NoError(t, err)
	require.NotEmpty(t, steps)

	mutationSeen := false
	for _, step := range steps {
		if IsMutation(step.Op) {
			mutationSeen = true
		} else {
			assert.False(t, mutationSeen, "read step planned after a mutation")
		}
	}
	last := steps[len(steps)-1]
	assert.Equal(t, OpCreateNode, last.Op)
	assert.Equal(t, "Skylab", last.Label)
	assert.Equal(t, "station", last.Type)
}

func TestHeuristicPlanMutationOnlyMessageGetsLeadingRead(t *testing.T) {
	d := &HeuristicDriver{}
	req := userRequest(ModeGraph, "/node Apollo project")

	steps, err := d.Plan(context.Background(), req, Capabilities(ModeGraph))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, OpGraphSnapshot, steps[0].Op)
	assert.Equal(t, OpCreateNode, steps[1].Op)
}

func TestSplitCommands(t *testing.T) {
	prose, mutations := splitCommands("look this up\n/edge Apollo Saturn uses 2.5\n/node Apollo project\nand more prose")

	assert.Equal(t, "look this up\nand more prose", prose)
	require.Len(t, mutations, 2)
	// Node commands always precede edge commands.
	assert.Equal(t, OpCreateNode, mutations[0].Op)
	assert.Equal(t, OpCreateEdge, mutations[1].Op)
	assert.Equal(t, 2.5, mutations[1].Weight)
}

func TestGuessLabels(t *testing.T) {
	labels := guessLabels("Did Apollo use the Saturn rocket, or did Apollo not?", 3)
	assert.Equal(t, []string{"Did", "Apollo", "Saturn"}, labels)

	assert.Empty(t, guessLabels("all lowercase words here", 3))
}

func TestGuessLabelsNonASCII(t *testing.T) {
	labels := guessLabels("the École bought Öl from a supplier", 3)
	assert.Equal(t, []string{"École"}, labels)
}

func TestWantsSnapshot(t *testing.T) {
	assert.True(t, wantsSnapshot("show me a snapshot of the graph"))
	assert.True(t, wantsSnapshot("give me an Overview"))
	assert.False(t, wantsSnapshot("what is apollo"))
}

type stubLLM struct {
	response string
	err      error
}

func (l *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return l.response, l.err
}

func TestLLMDriverParsesPlan(t *testing.T) {
	llm := &stubLLM{response: "```json\n{\"steps\": [{\"op\": \"search_chunks\", \"query\": \"apollo\"}, {\"op\": \"connected_nodes\", \"label\": \"Apollo\"}]}\n```"}
	d := NewLLMDriver(llm)

	steps, err := d.Plan(context.Background(), userRequest(ModeHybrid, "apollo"), Capabilities(ModeHybrid))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, OpSearchChunks, steps[0].Op)
	assert.Equal(t, "apollo", steps[0].Query)
	assert.Equal(t, OpConnectedNodes, steps[1].Op)
}

func TestLLMDriverFiltersDisallowedOps(t *testing.T) {
	llm := &stubLLM{response: `{"steps": [{"op": "create_node", "label": "X"}, {"op": "search_chunks", "query": "x"}]}`}
	d := NewLLMDriver(llm)

	steps, err := d.Plan(context.Background(), userRequest(ModeVector, "x"), Capabilities(ModeVector))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, OpSearchChunks, steps[0].Op)
}

func TestLLMDriverFallsBackOnError(t *testing.T) {
	d := NewLLMDriver(&stubLLM{err: errors.New("model offline")})

	steps, err := d.Plan(context.Background(), userRequest(ModeVector, "apollo rockets"), Capabilities(ModeVector))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, OpSearchChunks, steps[0].Op)
}

func TestLLMDriverFallsBackOnGarbage(t *testing.T) {
	d := NewLLMDriver(&stubLLM{response: "I cannot produce JSON today."})

	steps, err := d.Plan(context.Background(), userRequest(ModeVector, "apollo rockets"), Capabilities(ModeVector))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, OpSearchChunks, steps[0].Op)
}
