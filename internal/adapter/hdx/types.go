package hdx

import (
	"encoding/json"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// CKAN action API wire types.

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

type ckanPackage struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Title     string         `json:"title"`
	OwnerOrg  string         `json:"owner_org"`
	Notes     string         `json:"notes"`
	Resources []ckanResource `json:"resources"`
}

type ckanResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Format      string `json:"format"`
	URL         string `json:"url"`
}

func (p ckanPackage) toDomain() *domain.Dataset {
	d := &domain.Dataset{
		ID:       p.ID,
		Name:     p.Name,
		Title:    p.Title,
		OwnerOrg: p.OwnerOrg,
		Notes:    p.Notes,
	}
	for _, r := range p.Resources {
		d.Resources = append(d.Resources, domain.Resource{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Format:      r.Format,
			URL:         r.URL,
		})
	}
	return d
}

type ckanTag struct {
	Name         string `json:"name"`
	VocabularyID string `json:"vocabulary_id,omitempty"`
}

type ckanGroup struct {
	Name string `json:"name"`
}

// packageBody renders a dataset for package_create/package_update. Static
// extras are flattened into the top level, as HDX stores custom fields.
func packageBody(d *domain.Dataset, opts domain.CreateOptions) map[string]any {
	body := make(map[string]any, len(d.Extras)+10)
	for k, v := range d.Extras {
		body[k] = v
	}

	tags := make([]ckanTag, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, ckanTag(t))
	}
	groups := make([]ckanGroup, 0, len(d.Groups))
	for _, g := range d.Groups {
		groups = append(groups, ckanGroup{Name: g})
	}
	subnational := "0"
	if d.Subnational {
		subnational = "1"
	}

	body["name"] = d.Name
	body["title"] = d.Title
	body["notes"] = d.Notes
	body["dataset_date"] = d.TimePeriod.String()
	body["tags"] = tags
	body["groups"] = groups
	body["subnational"] = subnational
	if d.OwnerOrg != "" {
		body["owner_org"] = d.OwnerOrg
	}
	if opts.UpdatedByScript != "" {
		body["updated_by_script"] = opts.UpdatedByScript
	}
	if opts.Batch != "" {
		body["batch"] = opts.Batch
	}
	return body
}
