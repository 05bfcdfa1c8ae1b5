package utils

import (
	"errors"
	"time"

	"songlead/models"

	"gorm.io/gorm"
)

// ComputeSequenceNextRun returns the due time of the instance's current
// step, or nil when the instance has no runnable step (missing definition,
// exhausted index, completed).
func ComputeSequenceNextRun(catalog *SequenceCatalog, inst models.SequenceInstance) (*time.Time, error) {
	if inst.Trigger == "" || inst.StartTime.IsZero() || inst.Completed {
		return nil, nil
	}
	def, err := catalog.Get(inst.Trigger)
	if err != nil {
		return nil, err
	}
	if def == nil || len(def.Steps) == 0 {
		return nil, nil
	}
	if inst.Index < 0 || inst.Index >= len(def.Steps) {
		return nil, nil
	}
	due := inst.StartTime.Add(time.Duration(def.Steps[inst.Index].DelayMinutes) * time.Minute)
	return &due, nil
}

// CalculateLeadNextRun finds the earliest due time across a lead's active
// instances; nil when none of them has a runnable step.
func CalculateLeadNextRun(catalog *SequenceCatalog, instances []models.SequenceInstance) (*time.Time, error) {
	var earliest *time.Time
	for _, inst := range instances {
		next, err := ComputeSequenceNextRun(catalog, inst)
		if err != nil {
			return nil, err
		}
		if next != nil && (earliest == nil || next.Before(*earliest)) {
			earliest = next
		}
	}
	return earliest, nil
}

// SyncLeadNextSequence recomputes and stores the lead's next_sequence_at
// field. Pass the instance list when the caller already holds it; with nil
// the current list is read from the store. Absent any runnable instance the
// field is cleared.
func SyncLeadNextSequence(db *gorm.DB, catalog *SequenceCatalog, leadID string, override []models.SequenceInstance) error {
	if leadID == "" {
		return nil
	}

	instances := override
	if instances == nil {
		var lead models.Lead
		err := db.First(&lead, "id = ?", leadID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		instances = lead.ActiveSequences
	}

	next, err := CalculateLeadNextRun(catalog, instances)
	if err != nil {
		return err
	}

	return db.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Update("next_sequence_at", next).Error
}
