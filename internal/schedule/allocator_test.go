package schedule

import (
	"context"
	"fmt"
	"testing"

	"github.com/kairos-clinic/scheduling/internal/rowstore"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

const testTable = "appt_index"

func newTestAllocator(t *testing.T) (*Allocator, *rowstore.MemoryStore) {
	t.Helper()
	store := rowstore.NewMemoryStore(map[string]string{testTable: "row_id"})
	return NewAllocator(store, testTable, "Dr-Chair", logging.Default()), store
}

func seedSlot(t *testing.T, store *rowstore.MemoryStore, s Slot) {
	t.Helper()
	if s.Lane == "" {
		s.Lane = "Dr-Chair"
	}
	if s.Status == "" {
		s.Status = StatusOpen
	}
	if err := store.Append(context.Background(), testTable, s.ToRow()); err != nil {
		t.Fatalf("seed slot %s: %v", s.RowID, err)
	}
}

func TestFindOpenings_FiltersAndOrders(t *testing.T) {
	alloc, store := newTestAllocator(t)
	ctx := context.Background()

	seedSlot(t, store, Slot{RowID: "IDX-000001", Date: "2026-09-02", StartTime: "10:00", ApptType: "Cleaning", DurationMin: 30})
	seedSlot(t, store, Slot{RowID: "IDX-000002", Date: "2026-09-01", StartTime: "14:00", ApptType: "Cleaning", DurationMin: 30})
	seedSlot(t, store, Slot{RowID: "IDX-000003", Date: "2026-09-01", StartTime: "09:00", ApptType: "Filling", DurationMin: 60})
	// Booked rows and other lanes never surface as openings.
	seedSlot(t, store, Slot{RowID: "IDX-000004", Date: "2026-09-01", StartTime: "08:00", Status: StatusBooked, AppointmentID: "A-000001", PatientID: "P-000001"})
	seedSlot(t, store, Slot{RowID: "IDX-000005", Date: "2026-09-01", StartTime: "07:00", Lane: "Hygiene"})

	got, err := alloc.FindOpenings(ctx, "2026-09-01", "2026-09-02", OpeningsFilter{}, 5)
	if err != nil {
		t.Fatalf("FindOpenings returned error: %v", err)
	}

	want := []string{"IDX-000003", "IDX-000002", "IDX-000001"}
	if len(got) != len(want) {
		t.Fatalf("expected %d openings, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].RowID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].RowID)
		}
	}
}

func TestFindOpenings_ApptTypeAndDurationFilters(t *testing.T) {
	alloc, store := newTestAllocator(t)
	ctx := context.Background()

	seedSlot(t, store, Slot{RowID: "IDX-000001", Date: "2026-09-01", StartTime: "09:00", ApptType: "Cleaning", DurationMin: 30})
	seedSlot(t, store, Slot{RowID: "IDX-000002", Date: "2026-09-01", StartTime: "10:00", ApptType: "Filling", DurationMin: 60})

	got, err := alloc.FindOpenings(ctx, "2026-09-01", "2026-09-01", OpeningsFilter{ApptType: "Filling"}, 5)
	if err != nil {
		t.Fatalf("FindOpenings returned error: %v", err)
	}
	if len(got) != 1 || got[0].RowID != "IDX-000002" {
		t.Fatalf("expected only the Filling slot, got %v", got)
	}

	got, err = alloc.FindOpenings(ctx, "2026-09-01", "2026-09-01", OpeningsFilter{DurationMin: 30}, 5)
	if err != nil {
		t.Fatalf("FindOpenings returned error: %v", err)
	}
	if len(got) != 1 || got[0].RowID != "IDX-000001" {
		t.Fatalf("expected only the 30-minute slot, got %v", got)
	}
}

func TestFindOpenings_EmptyRangeReturnsEmptyNotError(t *testing.T) {
	alloc, store := newTestAllocator(t)
	seedSlot(t, store, Slot{RowID: "IDX-000001", Date: "2026-09-01", StartTime: "09:00"})

	got, err := alloc.FindOpenings(context.Background(), "2026-10-01", "2026-10-31", OpeningsFilter{}, 5)
	if err != nil {
		t.Fatalf("expected no error for empty result, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d slots", len(got))
	}
}

func TestFindOpenings_TruncatesToLimit(t *testing.T) {
	alloc, store := newTestAllocator(t)

	for i := 1; i <= 8; i++ {
		seedSlot(t, store, Slot{
			RowID:     fmt.Sprintf("IDX-%06d", i),
			Date:      "2026-09-01",
			StartTime: "09:00",
		})
	}

	got, err := alloc.FindOpenings(context.Background(), "2026-09-01", "2026-09-01", OpeningsFilter{}, 3)
	if err != nil {
		t.Fatalf("FindOpenings returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 openings, got %d", len(got))
	}
	// Equal timestamps: insertion order is the tie-break.
	if got[0].RowID != "IDX-000001" || got[2].RowID != "IDX-000003" {
		t.Fatalf("expected insertion-order tie-break, got %v, %v, %v", got[0].RowID, got[1].RowID, got[2].RowID)
	}
}

func TestDayView_AllStatusesSorted(t *testing.T) {
	alloc, store := newTestAllocator(t)

	seedSlot(t, store, Slot{RowID: "IDX-000001", Date: "2026-09-01", StartTime: "11:00", Status: StatusBooked, AppointmentID: "A-000001", PatientID: "P-000001"})
	seedSlot(t, store, Slot{RowID: "IDX-000002", Date: "2026-09-01", StartTime: "09:00"})
	seedSlot(t, store, Slot{RowID: "IDX-000003", Date: "2026-09-02", StartTime: "08:00"})

	got, err := alloc.DayView(context.Background(), "2026-09-01")
	if err != nil {
		t.Fatalf("DayView returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 slots for the day, got %d", len(got))
	}
	if got[0].RowID != "IDX-000002" || got[1].RowID != "IDX-000001" {
		t.Fatalf("expected start-time ordering, got %v then %v", got[0].RowID, got[1].RowID)
	}
}
