package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/kairos-clinic/scheduling/internal/rowstore"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// Allocator finds candidate slots in the appointment index.
type Allocator struct {
	store  rowstore.Store
	table  string
	lane   string
	logger *logging.Logger
}

// NewAllocator builds an allocator scoped to the configured lane.
func NewAllocator(store rowstore.Store, table, lane string, logger *logging.Logger) *Allocator {
	if store == nil {
		panic("schedule: row store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{store: store, table: table, lane: lane, logger: logger}
}

// OpeningsFilter narrows FindOpenings beyond the date range. Zero values
// mean "no constraint".
type OpeningsFilter struct {
	ApptType    string
	DurationMin int
}

// FindOpenings returns up to limit OPEN slots in the lane whose date falls
// inside [dateStart, dateEnd], ordered by (date, start_time) with store
// insertion order as the tie-break. An empty result is not an error: no
// availability is a valid answer and must never be fabricated.
func (a *Allocator) FindOpenings(ctx context.Context, dateStart, dateEnd string, filter OpeningsFilter, limit int) ([]Slot, error) {
	rows, err := a.store.ScanAll(ctx, a.table)
	if err != nil {
		return nil, fmt.Errorf("schedule: scan openings: %w", err)
	}

	openings := make([]Slot, 0, limit)
	for _, row := range rows {
		slot := FromRow(row)
		if slot.Status != StatusOpen || slot.Lane != a.lane {
			continue
		}
		if slot.Date < dateStart || slot.Date > dateEnd {
			continue
		}
		if filter.ApptType != "" && slot.ApptType != filter.ApptType {
			continue
		}
		if filter.DurationMin != 0 && slot.DurationMin != filter.DurationMin {
			continue
		}
		openings = append(openings, slot)
	}

	sort.SliceStable(openings, func(i, j int) bool {
		if openings[i].Date != openings[j].Date {
			return openings[i].Date < openings[j].Date
		}
		return openings[i].StartTime < openings[j].StartTime
	})

	if limit > 0 && len(openings) > limit {
		openings = openings[:limit]
	}

	a.logger.Info("openings search", "date_start", dateStart, "date_end", dateEnd, "found", len(openings))
	return openings, nil
}

// DayView returns every slot on the given date regardless of status, sorted
// by start time. Front-desk staff use it to eyeball the day.
func (a *Allocator) DayView(ctx context.Context, date string) ([]Slot, error) {
	rows, err := a.store.ScanAll(ctx, a.table)
	if err != nil {
		return nil, fmt.Errorf("schedule: scan day view: %w", err)
	}

	var day []Slot
	for _, row := range rows {
		slot := FromRow(row)
		if slot.Date == date {
			day = append(day, slot)
		}
	}

	sort.SliceStable(day, func(i, j int) bool {
		return day[i].StartTime < day[j].StartTime
	})
	return day, nil
}
