// Package hdx is a client for the Humanitarian Data Exchange catalog's CKAN
// action API.
package hdx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// ErrNotFound is returned when the catalog has no such dataset.
var ErrNotFound = errors.New("hdx: not found")

// Client implements the catalog operations the pipeline and the boundary
// source consume.
type Client struct {
	siteURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an HDX client for siteURL, e.g. https://data.humdata.org.
func NewClient(siteURL, apiKey, userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		siteURL:   strings.TrimSuffix(siteURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ReadDataset fetches a dataset and its resources by name or id.
func (c *Client) ReadDataset(ctx context.Context, name string) (*domain.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.actionURL("package_show")+"?id="+url.QueryEscape(name), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var pkg ckanPackage
	if err := c.do(req, "package_show", &pkg); err != nil {
		return nil, err
	}
	return pkg.toDomain(), nil
}

// CreateDataset creates d, or updates it when a dataset with the same name
// exists, then uploads the resources attached to d. With
// RemoveAdditionalResources, resources of an existing dataset whose names
// are not attached to d are deleted.
func (c *Client) CreateDataset(ctx context.Context, d *domain.Dataset, opts domain.CreateOptions) (*domain.Dataset, error) {
	existing, err := c.ReadDataset(ctx, d.Name)
	if errors.Is(err, ErrNotFound) {
		existing, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	body := packageBody(d, opts)
	action := "package_create"
	if existing != nil {
		body["id"] = existing.ID
		action = "package_update"
	}
	var pkg ckanPackage
	if err := c.postJSON(ctx, action, body, &pkg); err != nil {
		return nil, err
	}
	c.logger.Info("dataset saved", "dataset", d.Name, "id", pkg.ID, "action", action, "batch", opts.Batch)

	if existing != nil && opts.RemoveAdditionalResources {
		for _, r := range existing.Resources {
			if findResource(d.Resources, r.Name) != nil {
				continue
			}
			if err := c.postJSON(ctx, "resource_delete", map[string]string{"id": r.ID}, nil); err != nil {
				return nil, fmt.Errorf("remove resource %s: %w", r.Name, err)
			}
			c.logger.Info("resource removed", "dataset", d.Name, "resource", r.Name)
		}
	}

	created := *d
	created.ID = pkg.ID
	created.Resources = nil
	for _, r := range d.Resources {
		var prior *domain.Resource
		if existing != nil {
			prior = findResource(existing.Resources, r.Name)
		}
		id, err := c.upload(ctx, r, pkg.ID, prior)
		if err != nil {
			return nil, err
		}
		r.ID = id
		created.Resources = append(created.Resources, r)
	}

	if opts.HXLUpdate {
		if err := c.postJSON(ctx, "package_hxl_update", map[string]string{"id": pkg.ID}, nil); err != nil {
			return nil, err
		}
	}
	return &created, nil
}

// CreateResource uploads r to the dataset, replacing a resource of the same
// name.
func (c *Client) CreateResource(ctx context.Context, r domain.Resource, datasetID string) (string, error) {
	ds, err := c.ReadDataset(ctx, datasetID)
	if err != nil {
		return "", err
	}
	return c.upload(ctx, r, datasetID, findResource(ds.Resources, r.Name))
}

// upload creates r, or updates prior when set, sending FilePath as a
// multipart file.
func (c *Client) upload(ctx context.Context, r domain.Resource, datasetID string, prior *domain.Resource) (string, error) {
	action := "resource_create"
	fields := map[string]string{
		"name":        r.Name,
		"description": r.Description,
		"format":      r.Format,
	}
	if prior != nil {
		action = "resource_update"
		fields["id"] = prior.ID
	} else {
		fields["package_id"] = datasetID
	}

	var (
		body        io.Reader
		contentType string
	)
	if r.FilePath == "" {
		fields["url"] = r.URL
		data, err := json.Marshal(fields)
		if err != nil {
			return "", err
		}
		body, contentType = bytes.NewReader(data), "application/json"
	} else {
		fields["url_type"] = "upload"
		fields["resource_type"] = "file.upload"
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeMultipart(mw, fields, r.FilePath))
		}()
		body, contentType = pr, mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var res ckanResource
	if err := c.do(req, action, &res); err != nil {
		return "", fmt.Errorf("%s %s: %w", action, r.Name, err)
	}
	c.logger.Info("resource uploaded", "resource", r.Name, "id", res.ID, "action", action)
	return res.ID, nil
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, path string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("upload", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) postJSON(ctx context.Context, action string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, action, out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", action, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode == http.StatusNotFound || (env.Error != nil && env.Error.Type == "Not Found Error") {
		return fmt.Errorf("%w: %s", ErrNotFound, action)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: status %d: decode response: %w", action, resp.StatusCode, decodeErr)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := ""
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("hdx API error: %s: status %d: %s", action, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", action, err)
	}
	return nil
}

func (c *Client) actionURL(action string) string {
	return c.siteURL + "/api/3/action/" + action
}

func findResource(resources []domain.Resource, name string) *domain.Resource {
	for i := range resources {
		if resources[i].Name == name {
			return &resources[i]
		}
	}
	return nil
}
