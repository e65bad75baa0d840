package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
	"github.com/caretrail/visit-pipeline/internal/domain/providers"
	tsclient "github.com/caretrail/visit-pipeline/internal/infrastructure/clients/typesense"
)

const collectionName = "visit_notes"

// TypesenseAdapter implements visit note search using Typesense

type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements NoteSearchRepository
var _ providers.NoteSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	_, err := a.client.Client().Collection(collectionName).Retrieve(ctx)
	if err == nil {
		return nil // Collection exists
	}

	schema := &api.CollectionSchema{
		Name: collectionName,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "visit_id", Type: "string"},
			{Name: "narrative", Type: "string"},
			{Name: "concerns", Type: "string"},
			{Name: "observations", Type: "string"},
			{Name: "is_approved", Type: "bool", Facet: pointer.True()},
			{Name: "created_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("created_at"),
	}

	_, err = a.client.Client().Collections().Create(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}

	return nil
}

// IndexNote indexes or reindexes one note
func (a *TypesenseAdapter) IndexNote(ctx context.Context, note *entities.VisitNote) error {
	document := map[string]interface{}{
		"id":           note.VisitID,
		"visit_id":     note.VisitID,
		"narrative":    note.Narrative,
		"concerns":     note.StructuredData.Concerns,
		"observations": strings.Join(note.StructuredData.Observations, " "),
		"is_approved":  note.IsApproved,
		"created_at":   note.CreatedAt.Unix(),
	}

	_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to index note: %w", err)
	}

	return nil
}

// SearchNotes performs a full-text query over indexed notes
func (a *TypesenseAdapter) SearchNotes(ctx context.Context, query string, limit int) ([]*entities.VisitNote, error) {
	if limit <= 0 {
		limit = 20
	}

	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("narrative,concerns,observations"),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}

	notes := []*entities.VisitNote{}
	if result.Hits == nil {
		return notes, nil
	}

	for _, hit := range *result.Hits {
		doc := *hit.Document
		note := &entities.VisitNote{}
		if visitID, ok := doc["visit_id"].(string); ok {
			note.VisitID = visitID
		}
		if narrative, ok := doc["narrative"].(string); ok {
			note.Narrative = narrative
		}
		if concerns, ok := doc["concerns"].(string); ok {
			note.StructuredData.Concerns = concerns
		}
		if approved, ok := doc["is_approved"].(bool); ok {
			note.IsApproved = approved
		}
		notes = append(notes, note)
	}

	return notes, nil
}
