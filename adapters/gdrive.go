package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Google's OAuth2 endpoint, used only to refresh a stored token.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const driveListPageSize = 1000

// driveFile is the subset of the Drive v2 file resource we read.
type driveFile struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MimeType     string `json:"mimeType"`
	Copyable     *bool  `json:"copyable"`
	FileSize     string `json:"fileSize"`
	CreatedDate  string `json:"createdDate"`
	ModifiedDate string `json:"modifiedDate"`
	Parents      []struct {
		ID string `json:"id"`
	} `json:"parents"`
}

type driveFileList struct {
	Items         []driveFile `json:"items"`
	NextPageToken string      `json:"nextPageToken"`
}

type driveAbout struct {
	RootFolderID string `json:"rootFolderId"`
	User         struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"user"`
}

// DriveClient implements [remotefs.Session] over the Drive v2 REST API.
type DriveClient struct {
	client    *resty.Client
	rootID    string
	accountID string
}

var _ remotefs.Session = (*DriveClient)(nil)

// OpenDrive authenticates with the token configured in cfg.Drive and
// identifies the account. A TokenFile takes precedence over AccessToken.
func OpenDrive(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	httpClient, err := driveHTTPClient(ctx, cfg.Drive)
	if err != nil {
		return nil, err
	}
	return NewDriveClient(ctx, cfg.Drive, httpClient)
}

func driveHTTPClient(ctx context.Context, cfg config.DriveConfig) (*http.Client, error) {
	if cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(raw, &tok); err != nil {
			return nil, fmt.Errorf("parse token file %s: %w", cfg.TokenFile, err)
		}
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleEndpoint,
		}
		return oc.Client(ctx, &tok), nil
	}
	if cfg.AccessToken != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})), nil
	}
	return nil, fmt.Errorf("gdrive: %w: no token_file or access_token configured", remotefs.ErrAccessDenied)
}

// NewDriveClient wires httpClient, which must already authorize requests, to
// the configured API and fetches the account's identity.
func NewDriveClient(ctx context.Context, cfg config.DriveConfig, httpClient *http.Client) (*DriveClient, error) {
	logger := util.GetLogger("Drive.Open")

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Timeout*float64(time.Second))).
		SetHeader("Accept", "application/json")
	if cfg.RequestsPerSecond > 0 {
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}

	d := &DriveClient{client: client, rootID: "root"}

	var about driveAbout
	if err := d.getJSON(ctx, "about", "/about", nil, &about); err != nil {
		return nil, err
	}
	if about.RootFolderID != "" {
		d.rootID = about.RootFolderID
	}
	d.accountID = about.User.EmailAddress
	logger.Info().Str("account", d.accountID).Str("root", d.rootID).Msg("Connected to Drive")
	return d, nil
}

func (d *DriveClient) RootID() string    { return d.rootID }
func (d *DriveClient) AccountID() string { return d.accountID }
func (d *DriveClient) Close() error      { return nil }

func (d *DriveClient) ListChildren(ctx context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	return d.query(ctx, "list", fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(parentID)))
}

func (d *DriveClient) FindChildren(ctx context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	return d.query(ctx, "find", fmt.Sprintf("'%s' in parents and trashed=false and title='%s'",
		escapeQuery(parentID), escapeQuery(name)))
}

// query follows nextPageToken until the listing is exhausted.
func (d *DriveClient) query(ctx context.Context, op, q string) ([]remotefs.RemoteObject, error) {
	out := []remotefs.RemoteObject{}
	pageToken := ""
	for {
		params := map[string]string{
			"q":          q,
			"maxResults": strconv.Itoa(driveListPageSize),
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}
		var page driveFileList
		if err := d.getJSON(ctx, op, "/files", params, &page); err != nil {
			return nil, err
		}
		for i := range page.Items {
			out = append(out, page.Items[i].toObject())
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (d *DriveClient) GetObject(ctx context.Context, id string) (*remotefs.RemoteObject, error) {
	var f driveFile
	if err := d.getJSON(ctx, "get", "/files/"+url.PathEscape(id), nil, &f); err != nil {
		return nil, err
	}
	obj := f.toObject()
	return &obj, nil
}

// OpenRange downloads [start, end] of the object's content. A negative end
// reads to the end of the content.
func (d *DriveClient) OpenRange(ctx context.Context, id string, start, end int64) (io.ReadCloser, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-%d", start, end)
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Range", rangeHeader).
		SetQueryParam("alt", "media").
		Get("/files/" + url.PathEscape(id))
	if err != nil {
		return nil, remotefs.Transport("download", err)
	}

	body := resp.RawBody()
	switch status := resp.StatusCode(); {
	case status == http.StatusPartialContent:
		return body, nil
	case status == http.StatusOK:
		// the Range header was ignored and the body starts at offset 0
		return skipToRange(body, start, end)
	case status == http.StatusRequestedRangeNotSatisfiable:
		body.Close()
		return io.NopCloser(strings.NewReader("")), nil
	default:
		body.Close()
		return nil, statusError("download", id, status)
	}
}

// skipToRange trims a full-content body down to [start, end].
func skipToRange(body io.ReadCloser, start, end int64) (io.ReadCloser, error) {
	if start > 0 {
		if _, err := io.CopyN(io.Discard, body, start); err != nil {
			body.Close()
			if errors.Is(err, io.EOF) {
				return io.NopCloser(strings.NewReader("")), nil
			}
			return nil, remotefs.Transport("download", err)
		}
	}
	if end < 0 {
		return body, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(body, end-start+1), body}, nil
}

func (d *DriveClient) CreateFolder(ctx context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	body := map[string]any{
		"title":    name,
		"mimeType": remotefs.FolderMimeType,
		"parents":  []map[string]string{{"id": parentID}},
	}
	var f driveFile
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&f).
		Post("/files")
	if err != nil {
		return nil, remotefs.Transport("create folder", err)
	}
	if resp.IsError() {
		return nil, statusError("create folder", name, resp.StatusCode())
	}
	obj := f.toObject()
	return &obj, nil
}

func (d *DriveClient) getJSON(ctx context.Context, op, path string, params map[string]string, result any) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		Get(path)
	if err != nil {
		return remotefs.Transport(op, err)
	}
	if resp.IsError() {
		return statusError(op, path, resp.StatusCode())
	}
	return nil
}

func statusError(op, subject string, status int) error {
	switch status {
	case http.StatusNotFound:
		return remotefs.NotFound(subject)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s %s: %w: status %d", op, subject, remotefs.ErrAccessDenied, status)
	default:
		return remotefs.Transport(op, fmt.Errorf("%s: unexpected status %d", subject, status))
	}
}

// escapeQuery quotes s for use inside a single-quoted Drive query literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (f *driveFile) toObject() remotefs.RemoteObject {
	obj := remotefs.RemoteObject{
		ID:         f.ID,
		Name:       f.Title,
		MimeType:   f.MimeType,
		Copyable:   f.Copyable,
		CreatedAt:  parseDriveTime(f.CreatedDate),
		ModifiedAt: parseDriveTime(f.ModifiedDate),
	}
	// native documents carry no fileSize
	if f.FileSize != "" {
		if n, err := strconv.ParseInt(f.FileSize, 10, 64); err == nil {
			obj.Size = &n
		}
	}
	for _, p := range f.Parents {
		obj.ParentIDs = append(obj.ParentIDs, p.ID)
	}
	return obj
}

func parseDriveTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
