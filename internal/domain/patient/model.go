package patient

import (
	"time"

	"github.com/google/uuid"
)

// Billing tracks for the physician minute ladder.
const (
	TrackCCM = "rpm_ccm"
	TrackPCM = "rpm_pcm"
)

// Enrollment statuses.
const (
	StatusActive     = "active"
	StatusPaused     = "paused"
	StatusDischarged = "discharged"
)

// Patient maps to the patient table. A deliberately thin projection of the
// enrollment record: what the monitoring pipeline and billing need, nothing
// demographic beyond the display name.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Timezone     string    `db:"timezone" json:"timezone"`
	BillingTrack string    `db:"billing_track" json:"billingTrack"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Location resolves the patient's IANA timezone. Billing day boundaries are
// computed in this location.
func (p *Patient) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}
