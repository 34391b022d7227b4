package entities

var (
	Genders         = []string{"male", "female", "other"}
	EducationLevels = []string{"nursery", "primary", "secondary", "tertiary", "vocational", "not_enrolled"}
	HealthStatuses  = []string{"excellent", "good", "fair", "poor", "critical"}
	OrphanStatuses  = []string{"active", "pending", "inactive", "graduated"}
)

// Orphan is a sponsored child record.
type Orphan struct {
	ID               ID      `json:"id,omitempty"`
	FullName         string  `json:"full_name" validate:"notblank,max=100"`
	DateOfBirth      string  `json:"date_of_birth" validate:"notblank,datetime=2006-01-02,not_future"`
	Gender           string  `json:"gender" validate:"notblank,oneof=male female other"`
	Address          string  `json:"address" validate:"notblank"`
	GuardianName     string  `json:"guardian_name,omitempty" validate:"max=100"`
	GuardianPhone    string  `json:"guardian_phone,omitempty" validate:"omitempty,phone"`
	SchoolName       string  `json:"school_name,omitempty" validate:"max=200"`
	EducationLevel   string  `json:"education_level,omitempty" validate:"omitempty,oneof=nursery primary secondary tertiary vocational not_enrolled"`
	HealthStatus     string  `json:"health_status,omitempty" validate:"omitempty,oneof=excellent good fair poor critical"`
	SpecialNeeds     string  `json:"special_needs,omitempty"`
	MonthlyAllowance Decimal `json:"monthly_allowance,omitempty" validate:"omitempty,decimal,decimal_min=0"`
	LastPaymentDate  string  `json:"last_payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status           string  `json:"status,omitempty" validate:"omitempty,oneof=active pending inactive graduated"`
	CreatedAt        string  `json:"created_at,omitempty"`
	UpdatedAt        string  `json:"updated_at,omitempty"`
}

func (o Orphan) RecordID() ID { return o.ID }

func (o Orphan) Validate() error {
	return validate(o)
}
