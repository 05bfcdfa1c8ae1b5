package worker

import (
	"time"

	"gorm.io/gorm"

	"songlead/models"
	"songlead/utils"
)

// appendLeadTrigger starts a new sequence instance on the lead and tags it
// with the trigger name. Existing instances are left untouched, so a lead
// can run several sequences at once.
func appendLeadTrigger(db *gorm.DB, catalog *utils.SequenceCatalog, leadID, trigger string, now time.Time) error {
	var lead models.Lead
	if err := db.First(&lead, "id = ?", leadID).Error; err != nil {
		return err
	}

	instances := append(lead.ActiveSequences, models.SequenceInstance{
		Trigger:   trigger,
		StartTime: now,
		Index:     0,
	})
	updates := map[string]interface{}{"active_sequences": instances}
	if !lead.HasTag(trigger) {
		updates["tags"] = append(lead.Tags, trigger)
	}
	if err := db.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error; err != nil {
		return err
	}
	return utils.SyncLeadNextSequence(db, catalog, leadID, instances)
}
