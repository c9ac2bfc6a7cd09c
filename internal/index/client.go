package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/config"
	"github.com/support-rag/backend/pkg/logger"
)

// overfetchFactor widens each search leg so fusion has enough candidates.
const overfetchFactor = 3

// Client fronts the hybrid index: Milvus holds the vector leg, bleve the
// lexical (BM25) leg. Both are written on upsert and combined on search.
type Client struct {
	milvus         client.Client
	lexical        bleve.Index
	collectionName string
	vectorDim      int
}

func NewClient(cfg config.IndexConfig) (*Client, error) {
	m, err := client.NewGrpcClient(context.Background(), cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	lexical, err := openLexicalIndex(cfg.BlevePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	logger.Info("Hybrid index client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
		zap.Int("vector_dim", cfg.VectorDim),
	)

	return &Client{
		milvus:         m,
		lexical:        lexical,
		collectionName: cfg.CollectionName,
		vectorDim:      cfg.VectorDim,
	}, nil
}

func openLexicalIndex(path string) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(bleve.NewIndexMapping())
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, bleve.NewIndexMapping())
	}
	return idx, err
}

func (c *Client) Close() error {
	if err := c.lexical.Close(); err != nil {
		logger.Warn("Failed to close lexical index", zap.Error(err))
	}
	return c.milvus.Close()
}

func (c *Client) EnsureCollection(ctx context.Context) error {
	has, err := c.milvus.HasCollection(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", c.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: c.collectionName,
		Description:    "Support ticket embeddings",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "ticket_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "category",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "question",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "resolution",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "content_vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", c.vectorDim),
				},
			},
		},
	}

	err = c.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	err = c.milvus.CreateIndex(ctx, c.collectionName, "content_vector", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = c.milvus.LoadCollection(ctx, c.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", c.collectionName))

	return nil
}

// Upsert overwrites documents keyed by ID in both legs of the index and
// returns the number written. Vector dimensionality is checked before any
// write touches either leg.
func (c *Client) Upsert(ctx context.Context, docs []models.IndexDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	for _, doc := range docs {
		if len(doc.ContentVector) != c.vectorDim {
			return 0, fmt.Errorf("document %s vector dimension %d does not match collection dimension %d",
				doc.ID, len(doc.ContentVector), c.vectorDim)
		}
	}

	ids := make([]string, len(docs))
	ticketIDs := make([]string, len(docs))
	categories := make([]string, len(docs))
	questions := make([]string, len(docs))
	resolutions := make([]string, len(docs))
	vectors := make([][]float32, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		ticketIDs[i] = doc.TicketID
		categories[i] = doc.Category
		questions[i] = doc.Question
		resolutions[i] = doc.Resolution
		vectors[i] = doc.ContentVector
	}

	// Delete-then-insert gives overwrite semantics on the primary key.
	expr := fmt.Sprintf(`id in ["%s"]`, strings.Join(ids, `","`))
	if err := c.milvus.Delete(ctx, c.collectionName, "", expr); err != nil {
		logger.Debug("Delete before upsert failed", zap.Error(err))
	}

	_, err := c.milvus.Insert(
		ctx,
		c.collectionName,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("ticket_id", ticketIDs),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnVarChar("question", questions),
		entity.NewColumnVarChar("resolution", resolutions),
		entity.NewColumnFloatVector("content_vector", c.vectorDim, vectors),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert documents: %w", err)
	}

	if err := c.milvus.Flush(ctx, c.collectionName, false); err != nil {
		return 0, fmt.Errorf("failed to flush: %w", err)
	}

	batch := c.lexical.NewBatch()
	for _, doc := range docs {
		err := batch.Index(doc.ID, map[string]interface{}{
			"ticket_id":  doc.TicketID,
			"category":   doc.Category,
			"question":   doc.Question,
			"resolution": doc.Resolution,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to batch lexical document %s: %w", doc.ID, err)
		}
	}
	if err := c.lexical.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to write lexical batch: %w", err)
	}

	logger.Info("Documents upserted into hybrid index", zap.Int("count", len(docs)))

	return len(docs), nil
}

// Search runs both legs and fuses their rankings. A failed leg degrades to
// the other; with both legs down it returns an empty slice rather than an
// error, so index unavailability never aborts a chat turn.
func (c *Client) Search(ctx context.Context, queryText string, queryVector []float32, topK int) ([]models.ContextRecord, error) {
	if topK < 1 {
		topK = 1
	}

	fetch := topK * overfetchFactor

	vectorHits := c.vectorSearch(ctx, queryVector, fetch)
	lexicalHits := c.lexicalSearch(queryText, fetch)

	records := fuseRRF(vectorHits, lexicalHits, topK)

	logger.Debug("Hybrid search completed",
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("lexical_hits", len(lexicalHits)),
		zap.Int("fused", len(records)),
	)

	return records, nil
}

func (c *Client) vectorSearch(ctx context.Context, queryVector []float32, k int) []rankedHit {
	if len(queryVector) == 0 {
		return nil
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := c.milvus.Search(
		ctx,
		c.collectionName,
		[]string{},
		"",
		[]string{"ticket_id", "category", "question", "resolution"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"content_vector",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		logger.Warn("Vector search failed", zap.Error(err))
		return nil
	}

	var hits []rankedHit
	for _, sr := range searchResult {
		ticketIDCol := sr.Fields.GetColumn("ticket_id")
		categoryCol := sr.Fields.GetColumn("category")
		questionCol := sr.Fields.GetColumn("question")
		resolutionCol := sr.Fields.GetColumn("resolution")

		for i := 0; i < sr.ResultCount; i++ {
			ticketID, _ := ticketIDCol.Get(i)
			category, _ := categoryCol.Get(i)
			question, _ := questionCol.Get(i)
			resolution, _ := resolutionCol.Get(i)

			hits = append(hits, rankedHit{
				record: models.ContextRecord{
					TicketID:   ticketID.(string),
					Category:   category.(string),
					Question:   question.(string),
					Resolution: resolution.(string),
				},
				rank: len(hits) + 1,
			})
		}
	}

	return hits
}

func (c *Client) lexicalSearch(queryText string, k int) []rankedHit {
	if strings.TrimSpace(queryText) == "" {
		return nil
	}

	query := bleve.NewMatchQuery(queryText)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	searchReq.Fields = []string{"ticket_id", "category", "question", "resolution"}

	res, err := c.lexical.Search(searchReq)
	if err != nil {
		logger.Warn("Lexical search failed", zap.Error(err))
		return nil
	}

	var hits []rankedHit
	for i, hit := range res.Hits {
		hits = append(hits, rankedHit{
			record: models.ContextRecord{
				TicketID:   fieldString(hit.Fields, "ticket_id"),
				Category:   fieldString(hit.Fields, "category"),
				Question:   fieldString(hit.Fields, "question"),
				Resolution: fieldString(hit.Fields, "resolution"),
			},
			rank: i + 1,
		})
	}

	return hits
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
