package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smallnest/hybridrag"
)

// RedisStore keeps the graph in Redis. Nodes and edges live under
// JSON-valued keys, adjacency is tracked with sets, and uniqueness of
// the (source, target, relationship) triple is enforced with SETNX on a
// dedicated triple key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ hybridrag.GraphStore = (*RedisStore)(nil)

// RedisStoreOptions configuration for the Redis connection.
type RedisStoreOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "hybridrag:"
}

// NewRedisStore connects to Redis and returns the store.
func NewRedisStore(opts RedisStoreOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix)
}

// NewRedisStoreWithClient wraps an existing client, which also serves
// cluster setups and tests.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "hybridrag:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) nodeKey(id string) string {
	return fmt.Sprintf("%snode:%s", s.prefix, id)
}

func (s *RedisStore) edgeKey(id string) string {
	return fmt.Sprintf("%sedge:%s", s.prefix, id)
}

func (s *RedisStore) tripleKey(source, target, relationship string) string {
	return fmt.Sprintf("%striple:%s|%s|%s", s.prefix, source, target, relationship)
}

func (s *RedisStore) outKey(id string) string {
	return fmt.Sprintf("%sout:%s", s.prefix, id)
}

func (s *RedisStore) inKey(id string) string {
	return fmt.Sprintf("%sin:%s", s.prefix, id)
}

func (s *RedisStore) nodesKey() string {
	return s.prefix + "nodes"
}

func (s *RedisStore) edgesKey() string {
	return s.prefix + "edges"
}

func (s *RedisStore) labelKey(label string) string {
	return fmt.Sprintf("%slabel:%s", s.prefix, label)
}

// CreateNode inserts a node and returns it.
func (s *RedisStore) CreateNode(ctx context.Context, label, typ string, props hybridrag.Properties) (*hybridrag.Node, error) {
	if label == "" {
		return nil, fmt.Errorf("node label is empty: %w", hybridrag.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	node := &hybridrag.Node{
		ID:         uuid.New().String(),
		Label:      label,
		Type:       typ,
		Properties: props.Copy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.nodeKey(node.ID), data, 0)
	pipe.RPush(ctx, s.nodesKey(), node.ID)
	pipe.RPush(ctx, s.labelKey(label), node.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save node to redis: %w", err)
	}
	return node, nil
}

// GetNode returns the node with the given id.
func (s *RedisStore) GetNode(ctx context.Context, id string) (*hybridrag.Node, error) {
	data, err := s.client.Get(ctx, s.nodeKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("node %s: %w", id, hybridrag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node from redis: %w", err)
	}

	var node hybridrag.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	return &node, nil
}

// FindNodeByLabel returns the oldest node carrying the label.
func (s *RedisStore) FindNodeByLabel(ctx context.Context, label string) (*hybridrag.Node, error) {
	ids, err := s.client.LRange(ctx, s.labelKey(label), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up label: %w", err)
	}
	// Deleted nodes leave stale ids behind, skip them.
	for _, id := range ids {
		node, err := s.GetNode(ctx, id)
		if err == nil {
			return node, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("label %q: %w", label, hybridrag.ErrNotFound)
}

// UpdateNode replaces the node's mutable fields.
func (s *RedisStore) UpdateNode(ctx context.Context, node *hybridrag.Node) error {
	existing, err := s.GetNode(ctx, node.ID)
	if err != nil {
		return err
	}

	oldLabel := existing.Label
	existing.Label = node.Label
	existing.Type = node.Type
	existing.Properties = node.Properties.Copy()
	existing.Embedding = append([]float32(nil), node.Embedding...)
	existing.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.nodeKey(existing.ID), data, 0)
	if existing.Label != oldLabel {
		pipe.LRem(ctx, s.labelKey(oldLabel), 0, existing.ID)
		pipe.RPush(ctx, s.labelKey(existing.Label), existing.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save node to redis: %w", err)
	}
	return nil
}

// DeleteNode removes a node and every edge incident to it.
func (s *RedisStore) DeleteNode(ctx context.Context, id string) error {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}

	incident, err := s.Edges(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, edge := range incident {
		s.removeEdgePipe(ctx, pipe, edge)
	}
	pipe.Del(ctx, s.nodeKey(id), s.outKey(id), s.inKey(id))
	pipe.LRem(ctx, s.nodesKey(), 0, id)
	pipe.LRem(ctx, s.labelKey(node.Label), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete node from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) removeEdgePipe(ctx context.Context, pipe redis.Pipeliner, edge hybridrag.Edge) {
	pipe.Del(ctx, s.edgeKey(edge.ID), s.tripleKey(edge.Source, edge.Target, edge.Relationship))
	pipe.SRem(ctx, s.outKey(edge.Source), edge.ID)
	pipe.SRem(ctx, s.inKey(edge.Target), edge.ID)
	pipe.LRem(ctx, s.edgesKey(), 0, edge.ID)
}

// CreateEdge inserts an edge between two existing nodes. The SETNX on
// the triple key makes concurrent duplicate inserts lose cleanly.
func (s *RedisStore) CreateEdge(ctx context.Context, source, target, relationship string, props hybridrag.Properties, weight float64) (*hybridrag.Edge, error) {
	if relationship == "" {
		return nil, fmt.Errorf("edge relationship is empty: %w", hybridrag.ErrInvalidRequest)
	}
	if weight == 0 {
		weight = hybridrag.DefaultEdgeWeight
	}
	if weight < 0 {
		return nil, fmt.Errorf("edge weight %v is negative: %w", weight, hybridrag.ErrInvalidRequest)
	}

	for _, id := range []string{source, target} {
		if _, err := s.GetNode(ctx, id); err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("edge endpoint %s: %w", id, hybridrag.ErrReference)
			}
			return nil, err
		}
	}

	edge := &hybridrag.Edge{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		Relationship: relationship,
		Properties:   props.Copy(),
		Weight:       weight,
		CreatedAt:    time.Now().UTC(),
	}

	ok, err := s.client.SetNX(ctx, s.tripleKey(source, target, relationship), edge.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim edge triple: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("edge %s-[%s]->%s: %w", source, relationship, target, hybridrag.ErrDuplicate)
	}

	data, err := json.Marshal(edge)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edge: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.edgeKey(edge.ID), data, 0)
	pipe.SAdd(ctx, s.outKey(source), edge.ID)
	pipe.SAdd(ctx, s.inKey(target), edge.ID)
	pipe.RPush(ctx, s.edgesKey(), edge.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save edge to redis: %w", err)
	}
	return edge, nil
}

// Edges returns every edge incident to the node, in either direction.
func (s *RedisStore) Edges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	out, err := s.client.SMembers(ctx, s.outKey(nodeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency: %w", err)
	}
	in, err := s.client.SMembers(ctx, s.inKey(nodeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency: %w", err)
	}

	seen := make(map[string]bool, len(out)+len(in))
	ids := make([]string, 0, len(out)+len(in))
	for _, id := range append(out, in...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return s.getEdges(ctx, ids)
}

// OutEdges returns the edges whose source is the node.
func (s *RedisStore) OutEdges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	ids, err := s.client.SMembers(ctx, s.outKey(nodeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read adjacency: %w", err)
	}
	sort.Strings(ids)
	return s.getEdges(ctx, ids)
}

// ListNodes returns up to limit nodes in creation order. A non-positive
// limit returns all nodes.
func (s *RedisStore) ListNodes(ctx context.Context, limit int) ([]hybridrag.Node, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.LRange(ctx, s.nodesKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]hybridrag.Node, 0, len(ids))
	for _, id := range ids {
		node, err := s.GetNode(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// ListEdges returns up to limit edges in creation order. A non-positive
// limit returns all edges.
func (s *RedisStore) ListEdges(ctx context.Context, limit int) ([]hybridrag.Edge, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.LRange(ctx, s.edgesKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return s.getEdges(ctx, ids)
}

// EmbeddedNodes returns the nodes that carry an embedding.
func (s *RedisStore) EmbeddedNodes(ctx context.Context) ([]hybridrag.Node, error) {
	nodes, err := s.ListNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	embedded := nodes[:0]
	for _, node := range nodes {
		if len(node.Embedding) > 0 {
			embedded = append(embedded, node)
		}
	}
	return embedded, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, hybridrag.ErrNotFound)
}

func (s *RedisStore) getEdges(ctx context.Context, ids []string) ([]hybridrag.Edge, error) {
	edges := make([]hybridrag.Edge, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.edgeKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get edge from redis: %w", err)
		}
		var edge hybridrag.Edge
		if err := json.Unmarshal(data, &edge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, nil
}
