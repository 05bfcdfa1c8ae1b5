package utils

import (
	"errors"
	"fmt"

	"songlead/models"

	"gorm.io/gorm"
)

// ErrInvalidTransition rejects status writes outside the transition table.
var ErrInvalidTransition = errors.New("status transition not allowed")

// ErrSongClaimLost is returned when another worker moved the song first.
var ErrSongClaimLost = errors.New("song already claimed by another worker")

// TransitionSong atomically moves a song to the next status, applying any
// extra field updates in the same write. The UPDATE is conditioned on the
// status the caller read, so a concurrent claim fails cleanly instead of
// double-running a stage.
func TransitionSong(db *gorm.DB, song *models.Song, to models.SongStatus, extra map[string]interface{}) error {
	if !models.CanTransitionSong(song.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, song.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := db.Model(&models.Song{}).
		Where("id = ? AND status = ?", song.ID, song.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSongClaimLost
	}

	song.Status = to
	return nil
}

// ClaimSong fetches the oldest song sitting in the given status. Returns
// nil without error when the queue for that status is empty.
func ClaimSong(db *gorm.DB, status models.SongStatus) (*models.Song, error) {
	var song models.Song
	err := db.Where("status = ?", status).Order("created_at").First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}
