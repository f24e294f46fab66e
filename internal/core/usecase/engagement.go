package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/formly/internal/core/checklist"
	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
)

// Accepted tax years for new engagements.
const (
	minTaxYear = 2000
	maxTaxYear = 2100
)

type EngagementUseCase struct {
	engagements ports.EngagementRepository
	documents   ports.DocumentRepository
	now         func() time.Time
}

func NewEngagementUseCase(engagements ports.EngagementRepository, documents ports.DocumentRepository) *EngagementUseCase {
	return &EngagementUseCase{
		engagements: engagements,
		documents:   documents,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a collecting engagement with its generated checklist.
func (uc *EngagementUseCase) Create(ctx context.Context, req domain.CreateEngagementRequest) (*domain.Engagement, error) {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create engagement", errors.New("client name is required"))
	}
	if req.TaxYear < minTaxYear || req.TaxYear > maxTaxYear {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create engagement", fmt.Errorf("tax year %d out of range", req.TaxYear))
	}

	now := uc.now()
	eng := &domain.Engagement{
		ID:          uuid.NewString(),
		ClientName:  name,
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		TaxYear:     req.TaxYear,
		Status:      domain.EngagementCollecting,
		Checklist:   checklist.Generate(req.Intake, req.TaxYear),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.engagements.Create(ctx, eng); err != nil {
		return nil, fmt.Errorf("create engagement: %w", err)
	}
	return eng, nil
}

func (uc *EngagementUseCase) Get(ctx context.Context, id string) (*domain.Engagement, error) {
	return uc.engagements.GetByID(ctx, id)
}

// Documents lists the engagement's documents after confirming it exists.
func (uc *EngagementUseCase) Documents(ctx context.Context, id string, includeArchived bool) ([]*domain.Document, error) {
	if _, err := uc.engagements.GetByID(ctx, id); err != nil {
		return nil, err
	}
	docs, err := uc.documents.ListByEngagement(ctx, id, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list engagement documents: %w", err)
	}
	return docs, nil
}
