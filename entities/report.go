package entities

var (
	ReportTypes    = []string{"monthly", "quarterly", "annual", "incident", "maintenance", "financial", "assessment"}
	ReportStatuses = []string{"draft", "review", "approved", "published", "archived"}
)

// Report is a written report, optionally about one orphan or borehole.
type Report struct {
	ID          ID     `json:"id,omitempty"`
	Title       string `json:"title" validate:"notblank,max=200"`
	ReportType  string `json:"report_type" validate:"notblank,oneof=monthly quarterly annual incident maintenance financial assessment"`
	Content     string `json:"content" validate:"notblank"`
	Orphan      ID     `json:"orphan,omitempty"`
	Borehole    ID     `json:"borehole,omitempty"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=draft review approved published archived"`
	FileURL     string `json:"file_url,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

func (r Report) RecordID() ID { return r.ID }

func (r Report) Validate() error {
	return validate(r)
}
