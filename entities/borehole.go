package entities

var (
	WaterQualities   = []string{"excellent", "good", "fair", "poor", "untested"}
	BoreholeStatuses = []string{"active", "maintenance", "inactive", "planned"}
)

// Borehole is a water-well project.
type Borehole struct {
	ID                 ID      `json:"id,omitempty"`
	Name               string  `json:"name" validate:"notblank,max=100"`
	Location           string  `json:"location" validate:"notblank,max=200"`
	CommunityServed    string  `json:"community_served,omitempty" validate:"max=100"`
	Latitude           Decimal `json:"latitude,omitempty" validate:"omitempty,decimal,decimal_min=-90,decimal_max=90"`
	Longitude          Decimal `json:"longitude,omitempty" validate:"omitempty,decimal,decimal_min=-180,decimal_max=180"`
	DepthMeters        int     `json:"depth_meters" validate:"min=1,max=1000"`
	WaterQuality       string  `json:"water_quality,omitempty" validate:"omitempty,oneof=excellent good fair poor untested"`
	InstallationDate   string  `json:"installation_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LastMaintenance    string  `json:"last_maintenance,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BeneficiariesCount int     `json:"beneficiaries_count" validate:"min=0"`
	Status             string  `json:"status,omitempty" validate:"omitempty,oneof=active maintenance inactive planned"`
	CreatedAt          string  `json:"created_at,omitempty"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
}

func (b Borehole) RecordID() ID { return b.ID }

func (b Borehole) Validate() error {
	return validate(b)
}
