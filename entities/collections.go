package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

type statusChange struct {
	Status string `json:"status"`
}

// statusRule accepts exactly one of statuses.
func statusRule(statuses []string) string {
	return "notblank,oneof=" + strings.Join(statuses, " ")
}

// Orphans is the /orphans/ collection.
type Orphans struct {
	*Resource[Orphan]
}

// SetStatus moves an orphan record to one of OrphanStatuses.
func (o *Orphans) SetStatus(ctx context.Context, id ID, status string) (Orphan, error) {
	if err := validateField("status", status, statusRule(OrphanStatuses)); err != nil {
		return Orphan{}, fmt.Errorf("[entities Orphans.SetStatus] %w", err)
	}
	out, err := o.action(ctx, id, "update_status", statusChange{Status: status})
	if err != nil {
		return Orphan{}, fmt.Errorf("[entities Orphans.SetStatus] %w", err)
	}
	return out, nil
}

// Boreholes is the /boreholes/ collection.
type Boreholes struct {
	*Resource[Borehole]
}

// SetStatus moves a borehole to one of BoreholeStatuses.
func (b *Boreholes) SetStatus(ctx context.Context, id ID, status string) (Borehole, error) {
	if err := validateField("status", status, statusRule(BoreholeStatuses)); err != nil {
		return Borehole{}, fmt.Errorf("[entities Boreholes.SetStatus] %w", err)
	}
	out, err := b.action(ctx, id, "update_status", statusChange{Status: status})
	if err != nil {
		return Borehole{}, fmt.Errorf("[entities Boreholes.SetStatus] %w", err)
	}
	return out, nil
}

// Reports is the /reports/ collection.
type Reports struct {
	*Resource[Report]
}

// Approve marks a report approved.
func (r *Reports) Approve(ctx context.Context, id ID) (Report, error) {
	out, err := r.action(ctx, id, "approve", struct{}{})
	if err != nil {
		return Report{}, fmt.Errorf("[entities Reports.Approve] %w", err)
	}
	return out, nil
}

// Publish publishes an approved report. The service rejects anything else
// with a 400.
func (r *Reports) Publish(ctx context.Context, id ID) (Report, error) {
	out, err := r.action(ctx, id, "publish", struct{}{})
	if err != nil {
		return Report{}, fmt.Errorf("[entities Reports.Publish] %w", err)
	}
	return out, nil
}

// Download is an open report file. The caller closes Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

// Download opens the report's attached file.
func (r *Reports) Download(ctx context.Context, id ID) (*Download, error) {
	if id == "" {
		return nil, fmt.Errorf("[entities Reports.Download] %w: id is required", errors.ErrValidation)
	}
	endpoint := r.item(id) + "download/"
	resp, err := r.client.Request(ctx, endpoint, apiclient.RequestOptions{
		Header: http.Header{"Accept": []string{"*/*"}},
	})
	if err != nil {
		return nil, fmt.Errorf("[entities Reports.Download] %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("[entities Reports.Download] %w", notFound(apiclient.NewStatusError(endpoint, resp)))
	}

	filename := "report-" + id.String()
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Filename:      filename,
	}, nil
}

// Users is the read-only /auth/users/ directory. Only admins may list it.
type Users struct {
	client   Doer
	endpoint string
}

func (u *Users) List(ctx context.Context, query url.Values) ([]identity.Identity, error) {
	var raw json.RawMessage
	if err := u.client.DoJSON(ctx, http.MethodGet, u.endpoint, query, nil, &raw); err != nil {
		return nil, fmt.Errorf("[entities Users.List] %w", err)
	}
	users, err := decodeList[identity.Identity](raw)
	if err != nil {
		return nil, fmt.Errorf("[entities Users.List] %w", err)
	}
	return users, nil
}

// Directory groups the collections behind one API client.
type Directory struct {
	Orphans   *Orphans
	Boreholes *Boreholes
	Reports   *Reports
	Users     *Users
}

func NewDirectory(client Doer) *Directory {
	return &Directory{
		Orphans:   &Orphans{NewResource[Orphan](client, "/orphans/")},
		Boreholes: &Boreholes{NewResource[Borehole](client, "/boreholes/")},
		Reports:   &Reports{NewResource[Report](client, "/reports/")},
		Users:     &Users{client: client, endpoint: "/auth/users/"},
	}
}
