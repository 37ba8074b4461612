// Package analytics computes read-side statistics over the registry. Every
// figure is derived from the committed store state at call time.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// ProjectStats summarizes registered projects and everything minted from them
type ProjectStats struct {
	TotalProjects    int     `json:"total_projects"`
	VerifiedProjects int     `json:"verified_projects"`
	CreditsIssued    int     `json:"credits_issued"`
	CO2Sequestered   float64 `json:"co2_sequestered"`
}

// MarketStats summarizes credits still available for sale
type MarketStats struct {
	TotalCredits int     `json:"total_credits"`
	AvgPrice     string  `json:"avg_price"`
	TotalTrades  int     `json:"total_trades"`
	MarketValue  float64 `json:"market_value"`
}

// SensorStats aggregates one sensor type's readings for a project
type SensorStats struct {
	SensorType  registry.SensorType `json:"sensor_type"`
	Count       int                 `json:"count"`
	Mean        float64             `json:"mean"`
	Min         float64             `json:"min"`
	Max         float64             `json:"max"`
	LatestValue float64             `json:"latest_value"`
	Unit        string              `json:"unit"`
	LatestAt    time.Time           `json:"latest_at"`
}

// SensorSummary groups a project's telemetry by sensor type
type SensorSummary struct {
	ProjectID     string        `json:"project_id"`
	TotalReadings int           `json:"total_readings"`
	Sensors       []SensorStats `json:"sensors"`
}

// Aggregator handles registry statistics
type Aggregator struct {
	store  registry.Store
	logger *zap.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(store registry.Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger}
}

// ProjectStats counts projects and totals every credit regardless of status
func (a *Aggregator) ProjectStats(ctx context.Context) (*ProjectStats, error) {
	stats := &ProjectStats{}
	err := a.store.View(ctx, func(v registry.View) error {
		for _, p := range v.ListProjects() {
			stats.TotalProjects++
			if p.Status == registry.ProjectStatusVerified {
				stats.VerifiedProjects++
			}
		}
		for _, c := range v.ListCredits() {
			stats.CreditsIssued += c.Amount
			stats.CO2Sequestered += c.CO2Amount * float64(c.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// MarketStats reports on available credits and the number of purchases
func (a *Aggregator) MarketStats(ctx context.Context) (*MarketStats, error) {
	var (
		stats      = &MarketStats{}
		priceSum   float64
		priceCount int
	)
	err := a.store.View(ctx, func(v registry.View) error {
		for _, c := range v.ListCredits() {
			if c.Status != registry.CreditStatusAvailable {
				continue
			}
			stats.TotalCredits += c.Amount
			stats.MarketValue += c.Price * float64(c.Amount)
			priceSum += c.Price
			priceCount++
		}
		for _, t := range v.ListTransactions() {
			if t.Type == registry.TransactionTypePurchase {
				stats.TotalTrades++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	avg := 0.0
	if priceCount > 0 {
		avg = priceSum / float64(priceCount)
	}
	stats.AvgPrice = fmt.Sprintf("%.2f", avg)
	return stats, nil
}

// SensorSummary groups a project's readings by sensor type, sorted by type
func (a *Aggregator) SensorSummary(ctx context.Context, projectID string) (*SensorSummary, error) {
	summary := &SensorSummary{ProjectID: projectID, Sensors: []SensorStats{}}
	err := a.store.View(ctx, func(v registry.View) error {
		if _, ok := v.FindProject(projectID); !ok {
			return registry.NotFound("project", projectID)
		}

		byType := make(map[registry.SensorType]*SensorStats)
		sums := make(map[registry.SensorType]float64)
		// insertion order is chronological, so the last reading seen wins
		for _, r := range v.ListSensorReadings() {
			if r.ProjectID != projectID {
				continue
			}
			summary.TotalReadings++
			s, ok := byType[r.SensorType]
			if !ok {
				s = &SensorStats{SensorType: r.SensorType, Min: r.Value, Max: r.Value}
				byType[r.SensorType] = s
			}
			s.Count++
			sums[r.SensorType] += r.Value
			s.Min = min(s.Min, r.Value)
			s.Max = max(s.Max, r.Value)
			if !r.Timestamp.Before(s.LatestAt) {
				s.LatestValue = r.Value
				s.Unit = r.Unit
				s.LatestAt = r.Timestamp
			}
		}

		for t, s := range byType {
			s.Mean = sums[t] / float64(s.Count)
			summary.Sensors = append(summary.Sensors, *s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summary.Sensors, func(i, j int) bool {
		return summary.Sensors[i].SensorType < summary.Sensors[j].SensorType
	})
	a.logger.Debug("Sensor summary computed",
		zap.String("project_id", projectID),
		zap.Int("readings", summary.TotalReadings),
	)
	return summary, nil
}
