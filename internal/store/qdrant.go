package store

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/qdrant/go-client/qdrant"

	"github.com/ppiankov/verimem/internal/model"
)

// Qdrant is the ClaimStore adapter for the Qdrant gRPC API. One concrete
// adapter per supported store API shape, selected at startup; there is no
// per-call probing of query shapes.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	denseDim   uint64
	visualDim  uint64
	logger     *log.Logger
}

// NewQdrant connects to Qdrant and returns a store bound to one collection
func NewQdrant(cfg model.QdrantConfig, denseDim, visualDim int, logger *log.Logger) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	return &Qdrant{
		client:     client,
		collection: cfg.Collection,
		denseDim:   uint64(denseDim),
		visualDim:  uint64(visualDim),
		logger:     logger.With("component", "store"),
	}, nil
}

// EnsureCollection creates the claims collection with named dense and
// visual vector spaces plus keyword payload indexes, if it does not exist.
func (s *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorDense:  {Size: s.denseDim, Distance: qdrant.Distance_Cosine},
			VectorVisual: {Size: s.visualDim, Distance: qdrant.Distance_Cosine},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, field := range []string{"verdict", "topic", "source"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create payload index %q: %w", field, err)
		}
	}

	s.logger.Info("created collection", "name", s.collection, "dense_dim", s.denseDim, "visual_dim", s.visualDim)
	return nil
}

// QueryDense searches the dense text vector space
func (s *Qdrant) QueryDense(ctx context.Context, vector []float32, k int, filters *Filters) ([]ScoredRecord, error) {
	return s.query(ctx, VectorDense, vector, k, filters)
}

// QueryVisual searches the visual vector space for cross-modal retrieval
func (s *Qdrant) QueryVisual(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	return s.query(ctx, VectorVisual, vector, k, nil)
}

func (s *Qdrant) query(ctx context.Context, using string, vector []float32, k int, filters *Filters) ([]ScoredRecord, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf(using),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         buildFilter(filters),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	results := make([]ScoredRecord, 0, len(points))
	for _, p := range points {
		results = append(results, ScoredRecord{
			Record: recordFromPayload(p.GetId().GetUuid(), p.GetPayload()),
			Score:  float64(p.GetScore()),
		})
	}
	return results, nil
}

func buildFilter(filters *Filters) *qdrant.Filter {
	if filters == nil {
		return nil
	}

	var must []*qdrant.Condition
	if filters.Verdict != "" {
		must = append(must, qdrant.NewMatch("verdict", string(filters.Verdict)))
	}
	if filters.MinTimestamp != "" {
		// The numeric mirror field exists because range conditions are
		// numeric; the ISO string is kept for display and decay parsing.
		if t, ok := model.ParseTimestamp(filters.MinTimestamp); ok {
			must = append(must, qdrant.NewRange("timestamp_unix", &qdrant.Range{
				Gte: qdrant.PtrOf(float64(t.Unix())),
			}))
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Upsert writes a single record
func (s *Qdrant) Upsert(ctx context.Context, rec model.ClaimRecord) error {
	return s.UpsertBatch(ctx, []model.ClaimRecord{rec})
}

// UpsertBatch writes records in one call. Callers chunk; a failed chunk
// does not roll back previously committed chunks.
func (s *Qdrant) UpsertBatch(ctx context.Context, recs []model.ClaimRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, rec := range recs {
		vectors := map[string]*qdrant.Vector{
			VectorDense: qdrant.NewVector(rec.DenseEmbedding...),
		}
		if len(rec.VisualEmbedding) > 0 {
			vectors[VectorVisual] = qdrant.NewVector(rec.VisualEmbedding...)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: payloadFromRecord(rec),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// SetPayload updates payload fields of one record in place
func (s *Qdrant) SetPayload(ctx context.Context, id string, fields map[string]any) error {
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Payload:        qdrant.NewValueMap(fields),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("set payload on %s: %w", id, err)
	}
	return nil
}

// Scroll lists up to limit records, payload only
func (s *Qdrant) Scroll(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}

	recs := make([]model.ClaimRecord, 0, len(points))
	for _, p := range points {
		recs = append(recs, recordFromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	return recs, nil
}

// Delete removes one record by id
func (s *Qdrant) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of stored claims
func (s *Qdrant) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Recreate drops and recreates the collection
func (s *Qdrant) Recreate(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// payloadFromRecord flattens a record into the stored payload shape
func payloadFromRecord(rec model.ClaimRecord) map[string]*qdrant.Value {
	fields := map[string]any{
		"claim_text":         rec.ClaimText,
		"normalized_text":    rec.NormalizedText,
		"verdict":            string(rec.Verdict),
		"confidence":         rec.Confidence,
		"explanation":        rec.Explanation,
		"source":             rec.Source,
		"source_reliability": rec.SourceReliability,
		"timestamp":          rec.Timestamp,
		"first_seen":         rec.FirstSeen,
		"last_seen":          rec.LastSeen,
		"seen_count":         rec.SeenCount,
	}
	if rec.Topic != "" {
		fields["topic"] = rec.Topic
	}
	if len(rec.EvidenceIDs) > 0 {
		ids := make([]any, len(rec.EvidenceIDs))
		for i, id := range rec.EvidenceIDs {
			ids[i] = id
		}
		fields["evidence_ids"] = ids
	}
	if t, ok := model.ParseTimestamp(rec.Timestamp); ok {
		fields["timestamp_unix"] = t.Unix()
	}
	return qdrant.NewValueMap(fields)
}

// recordFromPayload rebuilds a record from a stored payload
func recordFromPayload(id string, payload map[string]*qdrant.Value) model.ClaimRecord {
	rec := model.ClaimRecord{
		ID:                id,
		ClaimText:         payload["claim_text"].GetStringValue(),
		NormalizedText:    payload["normalized_text"].GetStringValue(),
		Verdict:           model.ParseVerdict(payload["verdict"].GetStringValue()),
		Confidence:        payload["confidence"].GetDoubleValue(),
		Explanation:       payload["explanation"].GetStringValue(),
		Source:            payload["source"].GetStringValue(),
		SourceReliability: payload["source_reliability"].GetDoubleValue(),
		Topic:             payload["topic"].GetStringValue(),
		Timestamp:         payload["timestamp"].GetStringValue(),
		FirstSeen:         payload["first_seen"].GetStringValue(),
		LastSeen:          payload["last_seen"].GetStringValue(),
		SeenCount:         int(payload["seen_count"].GetIntegerValue()),
	}
	if rec.NormalizedText == "" {
		rec.NormalizedText = rec.ClaimText
	}
	if rec.SeenCount < 1 {
		rec.SeenCount = 1
	}
	if list := payload["evidence_ids"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			rec.EvidenceIDs = append(rec.EvidenceIDs, v.GetStringValue())
		}
	}
	return rec
}
