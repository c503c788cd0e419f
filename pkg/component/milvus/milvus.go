// Package milvus wraps the Milvus v2 SDK client for collections keyed by a
// VarChar primary key "id" with a float vector field "embedding".
package milvus

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docrag/pkg/options/milvus"
)

const (
	// PrimaryField is the VarChar primary key of every collection.
	PrimaryField = "id"
	// VectorField holds the embeddings.
	VectorField = "embedding"

	primaryMaxLen = 512

	// MaxQueryWindow is the largest offset+limit Milvus accepts for a query.
	MaxQueryWindow = 16384
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client. ctx bounds the connection handshake
// together with opts.Timeout.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", opts.Address, err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Options returns the options the client was built with.
func (c *Client) Options() *milvusopts.Options {
	return c.opts
}

// CollectionSchema defines the schema for a vector collection.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	MetaFields  []MetaField
}

// MetaField defines a scalar field stored next to each vector.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

func buildSchema(schema *CollectionSchema) *entity.Schema {
	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(false)

	collSchema.WithField(
		entity.NewField().
			WithName(PrimaryField).
			WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).
			WithMaxLength(primaryMaxLen),
	)
	collSchema.WithField(
		entity.NewField().
			WithName(VectorField).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)

	for _, f := range schema.MetaFields {
		field := entity.NewField().
			WithName(f.Name).
			WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}
	return collSchema
}

// EnsureCollection creates the collection with an IVF_FLAT L2 index when it
// does not exist yet, then loads it. Calling it on an existing collection
// only loads it.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	if schema.Dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", schema.Dimension)
	}

	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}

	if !exists {
		opt := milvusclient.NewCreateCollectionOption(schema.Name, buildSchema(schema))
		if err := c.client.CreateCollection(ctx, opt); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx := index.NewIvfFlatIndex(entity.L2, c.opts.NList)
		createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, VectorField, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := createIdxTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// UpsertData is one batch of rows. Every metadata slice must have one value
// per id; supported value types are string, int64, float32 and float64.
type UpsertData struct {
	IDs        []string
	Embeddings [][]float32
	Metadata   map[string][]any
}

func buildColumns(data *UpsertData) ([]column.Column, error) {
	n := len(data.IDs)
	if n == 0 {
		return nil, fmt.Errorf("no rows to upsert")
	}
	if len(data.Embeddings) != n {
		return nil, fmt.Errorf("got %d embeddings for %d ids", len(data.Embeddings), n)
	}
	dim := len(data.Embeddings[0])
	for i, vec := range data.Embeddings {
		if len(vec) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vec), dim)
		}
	}

	columns := make([]column.Column, 0, len(data.Metadata)+2)
	columns = append(columns,
		column.NewColumnVarChar(PrimaryField, data.IDs),
		column.NewColumnFloatVector(VectorField, dim, data.Embeddings),
	)

	names := make([]string, 0, len(data.Metadata))
	for name := range data.Metadata {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := data.Metadata[name]
		if len(values) != n {
			return nil, fmt.Errorf("field %s has %d values for %d ids", name, len(values), n)
		}
		col, err := metaColumn(name, values)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func metaColumn(name string, values []any) (column.Column, error) {
	switch first := values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, val := range values {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: mixed value types at row %d", name, i)
			}
			out[i] = s
		}
		return column.NewColumnVarChar(name, out), nil
	case int64:
		out := make([]int64, len(values))
		for i, val := range values {
			v, ok := val.(int64)
			if !ok {
				return nil, fmt.Errorf("field %s: mixed value types at row %d", name, i)
			}
			out[i] = v
		}
		return column.NewColumnInt64(name, out), nil
	case float32:
		out := make([]float32, len(values))
		for i, val := range values {
			v, ok := val.(float32)
			if !ok {
				return nil, fmt.Errorf("field %s: mixed value types at row %d", name, i)
			}
			out[i] = v
		}
		return column.NewColumnFloat(name, out), nil
	case float64:
		out := make([]float64, len(values))
		for i, val := range values {
			v, ok := val.(float64)
			if !ok {
				return nil, fmt.Errorf("field %s: mixed value types at row %d", name, i)
			}
			out[i] = v
		}
		return column.NewColumnDouble(name, out), nil
	default:
		return nil, fmt.Errorf("unsupported metadata type: %T for field %s", first, name)
	}
}

// Upsert writes rows keyed by id and flushes so they are searchable at once.
func (c *Client) Upsert(ctx context.Context, collectionName string, data *UpsertData) error {
	columns, err := buildColumns(data)
	if err != nil {
		return err
	}

	if _, err := c.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...)); err != nil {
		return fmt.Errorf("failed to upsert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// SearchResult represents a single search hit. Score is the raw metric
// value, which for L2 is a distance.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Search performs a vector similarity search restricted by filter (may be empty).
func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, topK int, filter string, outputFields []string) ([]SearchResult, error) {
	opt := milvusclient.NewSearchOption(
		collectionName,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(VectorField).
		WithSearchParam("nprobe", strconv.Itoa(c.opts.NProbe)).
		WithOutputFields(outputFields...)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}
	return parseResultSet(results[0]), nil
}

func parseResultSet(rs milvusclient.ResultSet) []SearchResult {
	out := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		result := SearchResult{Metadata: make(map[string]any)}
		if i < len(rs.Scores) {
			result.Score = rs.Scores[i]
		}
		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok && i < idCol.Len() {
			result.ID = idCol.Data()[i]
		}

		for _, field := range rs.Fields {
			if i >= field.Len() {
				continue
			}
			switch col := field.(type) {
			case *column.ColumnVarChar:
				result.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				result.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnFloat:
				result.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnDouble:
				result.Metadata[col.Name()] = col.Data()[i]
			}
		}
		out = append(out, result)
	}
	return out
}

// QueryIDs returns the primary keys matching filter, at most MaxQueryWindow.
func (c *Client) QueryIDs(ctx context.Context, collectionName, filter string) ([]string, error) {
	if filter == "" {
		filter = PrimaryField + ` != ""`
	}
	rs, err := c.client.Query(ctx, milvusclient.NewQueryOption(collectionName).
		WithFilter(filter).
		WithOutputFields(PrimaryField).
		WithLimit(MaxQueryWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}

	for _, field := range rs.Fields {
		if col, ok := field.(*column.ColumnVarChar); ok && col.Name() == PrimaryField {
			return append([]string(nil), col.Data()...), nil
		}
	}
	return []string{}, nil
}

// DeleteByIDs deletes rows by primary key.
func (c *Client) DeleteByIDs(ctx context.Context, collectionName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithStringIDs(PrimaryField, ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (c *Client) HasCollection(ctx context.Context, collectionName string) (bool, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collectionName))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Count returns the number of entities in a collection.
func (c *Client) Count(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// Health checks that the server answers a collection listing.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}
