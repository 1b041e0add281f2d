// Package domain defines financial requests and their supporting documents.
package domain

import (
	"errors"
	"fmt"
	"io"
	"time"

	"union-registry/backend/internal/disclosure"
)

var (
	ErrCategoryCountMismatch = errors.New("number of categories must match number of files")
	ErrInvalidCategory       = errors.New("invalid document category")
)

// Category classifies a submitted document.
type Category string

const (
	CategoryBalanceSheet Category = "balance_sheet"
	CategoryProfitLoss   Category = "profit_loss"
	CategoryCashFlow     Category = "cash_flow"
	CategoryOther        Category = "other"
)

// ParseCategory returns the category named by s.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryBalanceSheet, CategoryProfitLoss, CategoryCashFlow, CategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// FinancialRequest is one filing: a disclosure snapshot plus its documents in submission order.
type FinancialRequest struct {
	ID              string
	UnionID         string
	FinancialData   *disclosure.Snapshot
	IsApproved      bool
	ApprovalComment string
	CreatedAt       time.Time
	Documents       []*Document
}

// Document is a stored file attached to a request.
type Document struct {
	ID          string
	RequestID   string
	Category    Category
	FileRef     string
	FileName    string
	ContentType string
	Size        int64
	// UploadedBy is the principal that submitted the file; empty when unknown.
	UploadedBy string
	Position   int
	UploadedAt time.Time
}

// Upload is a file received from the transport, before it is stored.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// PairUploads matches files to categories by position. The two lists must have equal length.
func PairUploads(files []Upload, categories []string) ([]Category, error) {
	if len(files) != len(categories) {
		return nil, ErrCategoryCountMismatch
	}
	out := make([]Category, len(categories))
	for i, raw := range categories {
		c, err := ParseCategory(raw)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
