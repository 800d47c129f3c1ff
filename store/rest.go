/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/redhatinsights/deid-export-go/config"
	"github.com/redhatinsights/deid-export-go/models"
)

const authScheme = "scitran-user"

// DefaultTimeout is used when the configuration leaves the timeout unset.
const DefaultTimeout = 60 * time.Second

// RESTClient talks to the store's HTTP API. Requests share a token bucket
// so a pool of workers cannot flood the server.
type RESTClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

var _ Client = (*RESTClient)(nil)

// ParseAPIKey splits a "<host>[:<port>]:<secret>" credential into the API
// base url and the secret.
func ParseAPIKey(apiKey string) (string, string, error) {
	idx := strings.LastIndex(apiKey, ":")
	if idx <= 0 || idx == len(apiKey)-1 {
		return "", "", fmt.Errorf("api key must be of the form <host>:<secret>")
	}
	host, secret := apiKey[:idx], apiKey[idx+1:]
	return fmt.Sprintf("https://%s/api", host), secret, nil
}

// NewRESTClient builds a client from a credential. A configured API url
// takes precedence over the host embedded in the key.
func NewRESTClient(cfg *config.ExportConfig, apiKey string, log *zap.SugaredLogger) (*RESTClient, error) {
	baseURL, secret, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	if cfg.StoreConfig.APIURL != "" {
		baseURL = cfg.StoreConfig.APIURL
	}

	limit := rate.Inf
	if cfg.StoreConfig.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.StoreConfig.RequestsPerSecond)
	}
	timeout := cfg.StoreConfig.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	burst := cfg.StoreConfig.Burst
	if burst < 1 {
		burst = 1
	}

	c := &RESTClient{
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Authorization", fmt.Sprintf("%s %s", authScheme, secret)).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return c.limiter.Wait(r.Context())
		}).
		OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			c.log.Debugw("store request",
				"method", r.Request.Method,
				"url", r.Request.URL,
				"status", r.StatusCode(),
				"latency", r.Time(),
			)
			return nil
		})
	return c, nil
}

// Factory returns a ClientFactory producing REST clients with cfg.
func Factory(cfg *config.ExportConfig, log *zap.SugaredLogger) ClientFactory {
	return func(apiKey string) (Client, error) {
		return NewRESTClient(cfg, apiKey, log)
	}
}

func (c *RESTClient) Get(ctx context.Context, id string) (*models.Container, error) {
	return c.getContainer(ctx, "/containers/"+url.PathEscape(id))
}

func (c *RESTClient) GetProject(ctx context.Context, id string) (*models.Container, error) {
	return c.getContainer(ctx, "/projects/"+url.PathEscape(id))
}

func (c *RESTClient) GetSession(ctx context.Context, id string) (*models.Container, error) {
	return c.getContainer(ctx, "/sessions/"+url.PathEscape(id))
}

func (c *RESTClient) Lookup(ctx context.Context, path string) (*models.Container, error) {
	var result models.Container
	body := map[string]interface{}{"path": strings.Split(strings.Trim(path, "/"), "/")}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&result).Post("/lookup")
	if err := checkResponse("lookup "+path, resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) FindFirst(ctx context.Context, parentID string, childType models.ContainerType, filter string) (*models.Container, error) {
	var result []models.Container
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{"filter": filter, "limit": "1"}).
		SetResult(&result).
		Get(childrenPath(parentID, childType))
	if err := checkResponse("find "+string(childType), resp, err); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

func (c *RESTClient) ListChildren(ctx context.Context, parentID string, childType models.ContainerType) ([]models.Container, error) {
	var result []models.Container
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(childrenPath(parentID, childType))
	if err := checkResponse("list "+string(childType), resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RESTClient) AddChild(ctx context.Context, parentID string, childType models.ContainerType, fields map[string]interface{}) (string, error) {
	var result struct {
		ID string `json:"_id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).SetResult(&result).Post(childrenPath(parentID, childType))
	if err := checkResponse("add "+string(childType), resp, err); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("add %s: response carried no id", childType)
	}
	return result.ID, nil
}

func (c *RESTClient) UpdateMetadata(ctx context.Context, id string, fields map[string]interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(fields).Put("/containers/" + url.PathEscape(id))
	return checkResponse("update "+id, resp, err)
}

func (c *RESTClient) GetFile(ctx context.Context, containerID, name string) (*models.File, error) {
	var result models.File
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(filePath(containerID, name) + "/info")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := checkResponse("file info "+name, resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) DownloadFile(ctx context.Context, containerID, name string, w io.Writer) error {
	resp, err := c.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(filePath(containerID, name))
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() >= http.StatusBadRequest {
		return statusError("download "+name, resp.StatusCode(), resp.Status())
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	return nil
}

func (c *RESTClient) UploadFile(ctx context.Context, containerID, name string, r io.Reader) error {
	resp, err := c.http.R().SetContext(ctx).
		SetFileReader("file", name, r).
		Post("/containers/" + url.PathEscape(containerID) + "/files")
	return checkResponse("upload "+name, resp, err)
}

func (c *RESTClient) DeleteFile(ctx context.Context, containerID, name string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(filePath(containerID, name))
	return checkResponse("delete "+name, resp, err)
}

func (c *RESTClient) getContainer(ctx context.Context, path string) (*models.Container, error) {
	var result models.Container
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(path)
	if err := checkResponse("get "+path, resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func childrenPath(parentID string, childType models.ContainerType) string {
	return fmt.Sprintf("/containers/%s/%ss", url.PathEscape(parentID), childType)
}

func filePath(containerID, name string) string {
	return fmt.Sprintf("/containers/%s/files/%s", url.PathEscape(containerID), url.PathEscape(name))
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return statusError(op, resp.StatusCode(), fmt.Sprintf("%s; body: %s", resp.Status(), resp.String()))
	}
	return nil
}

func statusError(op string, code int, detail string) error {
	if code == http.StatusNotFound {
		return fmt.Errorf("%s: %s: %w", op, detail, ErrNotFound)
	}
	return fmt.Errorf("%s: %s", op, detail)
}
