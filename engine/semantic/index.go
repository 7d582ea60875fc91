// Package semantic indexes promoted vehicle issues in Qdrant so later chats
// can recall similar problems.
package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// DefaultMinScore drops weak matches from recall.
const DefaultMinScore = 0.55

// IssueIndex is the sole owner of Qdrant operations.
type IssueIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	embedder    Embedder
	minScore    float32
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string, embedder Embedder) (*IssueIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	idx := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, embedder)
	idx.conn = conn
	return idx, nil
}

// NewWithClients builds an index over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, embedder Embedder) *IssueIndex {
	return &IssueIndex{
		points:      points,
		collections: collections,
		collection:  collection,
		embedder:    embedder,
		minScore:    DefaultMinScore,
	}
}

// Close closes the gRPC connection, if the index owns one.
func (x *IssueIndex) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if missing.
func (x *IssueIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", x.collection, err)
	}
	return nil
}

// PointID is the stable point id of an issue; re-indexing replaces the point.
func PointID(vehicleID, issueKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mechanic:"+vehicleID+"/"+issueKey)).String()
}

func issueText(title, summary string) string {
	return strings.TrimSpace(title + ". " + summary)
}

// IndexIssue embeds the issue and upserts it.
func (x *IssueIndex) IndexIssue(ctx context.Context, rec domain.VehicleIssueRecord) error {
	vec, err := x.embedder.Embed(ctx, issueText(rec.Title, rec.Summary))
	if err != nil {
		return fmt.Errorf("semantic: embed issue %s: %w", rec.IssueKey, err)
	}
	wait := true
	_, err = x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.VehicleID, rec.IssueKey)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
			Payload: payload(map[string]any{
				"vehicle_id": rec.VehicleID,
				"issue_key":  rec.IssueKey,
				"title":      rec.Title,
				"summary":    rec.Summary,
				"severity":   string(rec.Severity),
				"updated_at": rec.UpdatedAt.Unix(),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert issue %s: %w", rec.IssueKey, err)
	}
	return nil
}

// SimilarIssues returns the vehicle's indexed issues closest to text.
func (x *IssueIndex) SimilarIssues(ctx context.Context, vehicleID, text string, limit int) ([]domain.VehicleIssueRecord, error) {
	if limit <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}
	minScore := x.minScore
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		ScoreThreshold: &minScore,
		Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch("vehicle_id", vehicleID)}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	out := make([]domain.VehicleIssueRecord, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		out = append(out, domain.VehicleIssueRecord{
			VehicleID: p["vehicle_id"].GetStringValue(),
			IssueKey:  p["issue_key"].GetStringValue(),
			Title:     p["title"].GetStringValue(),
			Summary:   p["summary"].GetStringValue(),
			Severity:  domain.SeverityLabel(p["severity"].GetStringValue()),
			UpdatedAt: time.Unix(p["updated_at"].GetIntegerValue(), 0).UTC(),
		})
	}
	return out, nil
}

func payload(m map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(m))
	for k, val := range m {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
