// Package qdrant provides a vector driver backed by a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/vector"
)

const (
	// DefaultCollection is used when Config.Collection is empty.
	DefaultCollection = "memstate_nodes"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadNodeID = "node_id"
	payloadHash   = "hash"
)

// pointNamespace derives stable point UUIDs from node ids, since Qdrant
// only accepts integers and UUIDs as point ids.
var pointNamespace = uuid.MustParse("5b8f4c0e-3a61-4e5f-9c1d-6f3b2a7e9d40")

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Addr is the gRPC endpoint as host or host:port.
	Addr string

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// Collection holds one point per node.
	Collection string

	// Dimensions is the embedding width used when creating the collection.
	Dimensions uint
}

// Driver implements vector.Driver against Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Addr == "" {
		return nil, errors.New("qdrant address is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	host, port, err := splitAddr(c.Addr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
		logger.Info("created qdrant collection", zap.String("collection", c.Collection))
	}

	logger.Info("qdrant vector driver initialized",
		zap.String("addr", c.Addr),
		zap.String("collection", c.Collection),
		zap.Uint("dimensions", c.Dimensions),
	)

	return &Driver{client: client, collection: c.Collection, logger: logger}, nil
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// no port given
		return addr, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// PointID returns the Qdrant point UUID stored for a node id.
func PointID(nodeID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(nodeID)).String()
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = qdrant.NewIDUUID(PointID(id))
	}
	return out
}

// Add upserts one point per document.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadNodeID: doc.ID,
				payloadHash:   doc.Hash,
			}),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("indexed nodes in qdrant", zap.Int("count", len(docs)))
	return nil
}

// Query returns the nearest points by cosine similarity.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:   payload[payloadNodeID].GetStringValue(),
				Hash: payload[payloadHash].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}
	return results, nil
}

// Get retrieves points with their vectors.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		docs = append(docs, vector.Document{
			ID:        payload[payloadNodeID].GetStringValue(),
			Hash:      payload[payloadHash].GetStringValue(),
			Embedding: p.GetVectors().GetVector().GetData(),
		})
	}
	return docs, nil
}

// Delete removes points by node id.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
