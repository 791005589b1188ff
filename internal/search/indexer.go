package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

// ticketDocument is the searchable projection of a ticket. Contact info is
// never indexed; only what the front desk needs to find a ticket quickly.
type ticketDocument struct {
	TicketID       string  `json:"ticket_id"`
	Status         string  `json:"status"`
	CustomerName   string  `json:"customer_name"`
	DeviceModel    string  `json:"device_model"`
	ProblemSummary string  `json:"problem_summary"`
	TakenInBy      string  `json:"taken_in_by"`
	WorkedBy       *string `json:"worked_by,omitempty"`
	IsRush         bool    `json:"is_rush"`
	CreatedAt      string  `json:"created_at"`
}

// Indexer keeps the ticket search index in sync. Index writes are
// best-effort and run after the database commit.
type Indexer struct {
	es    *client.ESClient
	index string
}

func NewIndexer(cfg *config.Config, es *client.ESClient) *Indexer {
	return &Indexer{
		es:    es,
		index: cfg.Elastic.TicketIndex,
	}
}

func (i *Indexer) IndexTicket(ctx context.Context, ticket *models.Ticket) {
	if i == nil || i.es == nil {
		return
	}

	doc := ticketDocument{
		TicketID:       ticket.TicketID,
		Status:         string(ticket.Status),
		CustomerName:   ticket.CustomerName,
		DeviceModel:    ticket.DeviceModel,
		ProblemSummary: ticket.ProblemSummary,
		TakenInBy:      ticket.TakenInBy,
		WorkedBy:       ticket.WorkedBy,
		IsRush:         ticket.IsRush,
		CreatedAt:      ticket.CreatedAt.UTC().Format(time.RFC3339),
	}

	res, err := i.es.IndexDocument(ctx, i.index, ticket.TicketID, doc)
	if err != nil {
		util.Error("Failed to index ticket",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Error("Ticket index request rejected",
			zap.String("ticket_id", ticket.TicketID),
			zap.String("status", res.Status()))
	}
}

func (i *Indexer) RemoveTicket(ctx context.Context, ticketID string) {
	if i == nil || i.es == nil {
		return
	}

	res, err := i.es.DeleteDocument(ctx, i.index, ticketID)
	if err != nil {
		util.Error("Failed to remove ticket from index",
			zap.String("ticket_id", ticketID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()
}

// searchResponse mirrors the subset of the ES search reply we read.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source ticketDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a full-text query over customer name, device model, and
// problem summary, and returns matching ticket ids in relevance order.
func (i *Indexer) Search(ctx context.Context, text string, limit int) ([]string, error) {
	if i == nil || i.es == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"customer_name^2", "device_model", "problem_summary", "ticket_id"},
			},
		},
	}

	res, err := i.es.Search(ctx, i.index, query)
	if err != nil {
		return nil, err
	}

	parsed := &searchResponse{}
	if err := i.es.ParseResponse(res, parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.Source.TicketID)
	}
	return ids, nil
}
