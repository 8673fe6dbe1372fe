package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRenderDocument renders the printable PDF for a quote or invoice.
	TaskTypeRenderDocument = "billing:render_document"
	// TaskTypeBillingSweep expires stale quotes and flags overdue invoices.
	TaskTypeBillingSweep = "billing:sweep"
)

// RenderDocumentPayload identifies the document to render.
type RenderDocumentPayload struct {
	TenantID   int64  `json:"tenant_id"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
}

// NewRenderDocumentTask constructs an Asynq task.
func NewRenderDocumentTask(payload RenderDocumentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRenderDocument, data), nil
}

// NewBillingSweepTask constructs the periodic sweep task.
func NewBillingSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeBillingSweep, nil)
}
