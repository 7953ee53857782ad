package repository

import (
	"context"

	"lexlab/internal/database"
)

// ExposureLatencyPoint is one aggregate for the researcher charts: mean
// guess latency for a condition at one exposure step.
type ExposureLatencyPoint struct {
	ExposureIndex int     `json:"exposureIndex"`
	Condition     string  `json:"condition"`
	MeanMs        float64 `json:"meanMs"`
}

// GetGuessLatencyByExposure aggregates guess-phase response times per
// exposure step and condition across completed sessions, the learning curve
// the massed/spaced comparison is after. Warm-up records never reach the
// store, so no filter for them is needed here.
func GetGuessLatencyByExposure(ctx context.Context) ([]ExposureLatencyPoint, error) {
	var data []ExposureLatencyPoint

	query := `
		SELECT
			r.exposure_index AS exposure_index,
			r.condition AS condition,
			AVG(r.response_time_ms) AS mean_ms
		FROM responses r
		JOIN participants p ON r.participant_id = p.id
		WHERE r.phase = 'guess' AND p.status = 'completed'
		GROUP BY r.exposure_index, r.condition
		ORDER BY r.exposure_index, r.condition;
	`

	err := database.DB.WithContext(ctx).Raw(query).Scan(&data).Error
	return data, err
}
