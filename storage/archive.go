package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	jsoniter "github.com/json-iterator/go"

	"github.com/Dosada05/league-orchestrator/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StandingsSnapshot is the archived record of one finished division.
type StandingsSnapshot struct {
	Season     int                    `json:"season"`
	InstanceID int                    `json:"instance_id"`
	Division   string                 `json:"division"`
	Winner     *models.Participant    `json:"winner,omitempty"`
	Rows       []*models.StandingsRow `json:"rows"`
	ArchivedAt time.Time              `json:"archived_at"`
}

// StandingsArchiver writes standings snapshots as JSON objects.
type StandingsArchiver struct {
	uploader FileUploader
	prefix   string
	now      func() time.Time
}

func NewStandingsArchiver(uploader FileUploader, prefix string) *StandingsArchiver {
	if prefix == "" {
		prefix = "standings"
	}
	return &StandingsArchiver{uploader: uploader, prefix: prefix, now: time.Now}
}

// Key is seasons/<n>/<division>-<unix>.json under the archiver prefix.
func (a *StandingsArchiver) Key(snapshot *StandingsSnapshot) string {
	division := slug.Make(snapshot.Division)
	if division == "" {
		division = fmt.Sprintf("instance-%d", snapshot.InstanceID)
	}
	return fmt.Sprintf("%s/seasons/%d/%s-%d.json", a.prefix, snapshot.Season, division, snapshot.ArchivedAt.Unix())
}

func (a *StandingsArchiver) Archive(ctx context.Context, snapshot *StandingsSnapshot) (*UploadResult, error) {
	if snapshot.ArchivedAt.IsZero() {
		snapshot.ArchivedAt = a.now().UTC()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode standings snapshot: %w", err)
	}
	return a.uploader.Upload(ctx, a.Key(snapshot), "application/json", bytes.NewReader(payload))
}
