package storage

import (
	"context"

	"github.com/gewerk/handover/libs/db"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type RatingRepository struct {
	pool *db.Pool
}

func NewRatingRepository(pool *db.Pool) *RatingRepository {
	return &RatingRepository{pool: pool}
}

// Upsert writes the closure rating inside the closure transaction. A
// repeated closure for the same triple overwrites the previous scores.
func (r *RatingRepository) Upsert(ctx context.Context, tx pgx.Tx, rt *model.Rating) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO ratings
			(commissioning_party_id, performing_party_id, work_item_id,
			 quality, timeliness, communication, value, overall, comment, public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (commissioning_party_id, performing_party_id, work_item_id)
		DO UPDATE SET quality = EXCLUDED.quality,
			timeliness = EXCLUDED.timeliness,
			communication = EXCLUDED.communication,
			value = EXCLUDED.value,
			overall = EXCLUDED.overall,
			comment = EXCLUDED.comment,
			public = EXCLUDED.public,
			updated_at = now()
		RETURNING id
	`, rt.CommissioningPartyID, rt.PerformingPartyID, rt.WorkItemID,
		rt.Quality, rt.Timeliness, rt.Communication, rt.Value, rt.Overall,
		rt.Comment, rt.Public).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// PartySummary is the live aggregate over public ratings; correct even
// before the deferred analytics row lands.
type PartySummary struct {
	PerformingPartyID string
	TotalRatings      int
	AvgQuality        float64
	AvgTimeliness     float64
	AvgCommunication  float64
	AvgValue          float64
	AvgOverall        float64
}

func (r *RatingRepository) SummaryByPerformingParty(ctx context.Context, performingPartyID string) (PartySummary, error) {
	s := PartySummary{PerformingPartyID: performingPartyID}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(quality), 0),
			COALESCE(AVG(timeliness), 0),
			COALESCE(AVG(communication), 0),
			COALESCE(AVG(value), 0),
			COALESCE(AVG(overall), 0)
		FROM ratings
		WHERE performing_party_id = $1 AND public
	`, performingPartyID).Scan(
		&s.TotalRatings,
		&s.AvgQuality,
		&s.AvgTimeliness,
		&s.AvgCommunication,
		&s.AvgValue,
		&s.AvgOverall,
	)
	if err != nil {
		return PartySummary{}, err
	}
	return s, nil
}
