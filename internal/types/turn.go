package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Turn is one learner utterance and its derived artifacts. Rows are
// append-only: the repo exposes no update or delete.
type Turn struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        string         `gorm:"column:user_id;not null;index:idx_turn_user_scenario" json:"user_id"`
	ScenarioID    string         `gorm:"column:scenario_id;not null;index:idx_turn_user_scenario" json:"scenario_id"`
	TurnIndex     int            `gorm:"column:turn_index;not null" json:"turn_index"`
	PartnerText   string         `gorm:"column:partner_text" json:"partner_text"`
	AudioURL      string         `gorm:"column:audio_url;not null" json:"audio_url"`
	Transcript    string         `gorm:"column:transcript;not null" json:"transcript"`
	Feedback      datatypes.JSON `gorm:"type:jsonb;column:feedback" json:"feedback"`
	ContextWindow datatypes.JSON `gorm:"type:jsonb;column:context_window" json:"context_window"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Turn) TableName() string { return "conversation_turn" }
