package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QuoteStatus represents the lifecycle state of a quote
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
)

// QuoteLine is one line item of a quote
type QuoteLine struct {
	Description string  `bson:"description" json:"description"`
	Quantity    float64 `bson:"quantity" json:"quantity"`
	UnitPrice   float64 `bson:"unit_price" json:"unit_price"`
	Total       float64 `bson:"total" json:"total"`
}

// Quote represents a quote built for a client, optionally tied to a project
type Quote struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CompanyID string             `bson:"company_id" json:"company_id"`
	ClientID  string             `bson:"client_id" json:"client_id"`
	ProjectID string             `bson:"project_id,omitempty" json:"project_id,omitempty"`

	Number   string      `bson:"number" json:"number"`
	Title    string      `bson:"title" json:"title"`
	Status   QuoteStatus `bson:"status" json:"status"`
	Currency string      `bson:"currency" json:"currency"`
	Lines    []QuoteLine `bson:"lines,omitempty" json:"lines,omitempty"`
	Total    float64     `bson:"total" json:"total"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	CreatedBy string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
}

// IsValidQuoteStatus checks if a status value is valid
func IsValidQuoteStatus(status string) bool {
	switch QuoteStatus(status) {
	case QuoteDraft, QuoteSent, QuoteAccepted, QuoteRejected:
		return true
	}
	return false
}

// SumLines recomputes line totals and the quote total from quantities and
// unit prices. Stored totals are never trusted from the request body.
func (q *Quote) SumLines() {
	var total float64
	for i := range q.Lines {
		q.Lines[i].Total = q.Lines[i].Quantity * q.Lines[i].UnitPrice
		total += q.Lines[i].Total
	}
	q.Total = total
}
