package repository

import (
	"context"
	"fmt"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/db"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"

	"github.com/rs/zerolog"
)

// RatingHistoryRepository reads the rows SaveStats writes alongside each
// rating change.
type RatingHistoryRepository struct {
	queries *db.Queries
	logger  zerolog.Logger
}

func NewRatingHistoryRepository(queries *db.Queries, logger zerolog.Logger) *RatingHistoryRepository {
	return &RatingHistoryRepository{
		queries: queries,
		logger:  logger,
	}
}

func (r *RatingHistoryRepository) GetByMember(ctx context.Context, memberID string, limit int) ([]domain.RatingEvent, error) {
	records, err := r.queries.GetRatingHistoryByMember(ctx, db.GetRatingHistoryByMemberParams{
		MemberID: memberID,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get rating history for %s: %w", memberID, err)
	}

	result := make([]domain.RatingEvent, len(records))
	for i, rec := range records {
		result[i] = domain.RatingEvent{
			ID:                    rec.ID,
			EventID:               rec.EventID,
			TeamID:                rec.TeamID,
			MemberID:              rec.MemberID,
			Kind:                  domain.RatingEventKind(rec.Kind),
			Delta:                 int(rec.Delta),
			RatingAfter:           int(rec.RatingAfter),
			MatchmakerRatingAfter: int(rec.MatchmakerRatingAfter),
			CreatedAt:             rec.CreatedAt,
		}
	}
	return result, nil
}
