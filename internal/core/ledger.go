package core

import (
	"plazacore/pkg/domain"
)

// CapacityLedger maintains facility occupancy counters inside transactions.
// The counters are a fast-path view over the assignment set; Rebuild
// recomputes them when drift is suspected.
type CapacityLedger struct{}

// NewCapacityLedger constructs a ledger.
func NewCapacityLedger() *CapacityLedger {
	return &CapacityLedger{}
}

// TryReserve claims one seat at the facility. It fails with a CapacityError
// when the facility is full and with a NotFoundError when it does not exist.
func (l *CapacityLedger) TryReserve(tx domain.Transaction, facilityID string) error {
	_, err := tx.UpdateFacility(facilityID, func(f *domain.Facility) error {
		if f.Occupied >= f.Capacity {
			return domain.CapacityError{FacilityID: f.ID, Capacity: f.Capacity, Occupied: f.Occupied}
		}
		f.Occupied++
		return nil
	})
	return err
}

// Release returns one seat to the facility. The counter never drops below
// zero even if release is called against a drifted count.
func (l *CapacityLedger) Release(tx domain.Transaction, facilityID string) error {
	_, err := tx.UpdateFacility(facilityID, func(f *domain.Facility) error {
		if f.Occupied > 0 {
			f.Occupied--
		}
		return nil
	})
	return err
}

// Reset zeroes the facility's occupancy counter.
func (l *CapacityLedger) Reset(tx domain.Transaction, facilityID string) error {
	_, err := tx.UpdateFacility(facilityID, func(f *domain.Facility) error {
		f.Occupied = 0
		return nil
	})
	return err
}

// Rebuild recomputes every occupancy counter from the assignment set and
// returns how many facilities were corrected.
func (l *CapacityLedger) Rebuild(tx domain.Transaction) (int, error) {
	view := tx.Snapshot()
	held := map[string]int{}
	for _, a := range view.ListAssignments() {
		held[a.FacilityID]++
	}
	corrected := 0
	for _, f := range view.ListFacilities() {
		want := held[f.ID]
		if f.Occupied == want {
			continue
		}
		if _, err := tx.UpdateFacility(f.ID, func(fac *domain.Facility) error {
			fac.Occupied = want
			return nil
		}); err != nil {
			return corrected, err
		}
		corrected++
	}
	return corrected, nil
}
