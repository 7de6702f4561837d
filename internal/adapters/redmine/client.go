/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package redmine

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
)

const pageSize = 100

type Client struct {
    baseURL string
    key     string
    http    *http.Client
    log     zerolog.Logger
    loc     *time.Location
    backoff time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: strings.TrimRight(cfg.RedmineURL, "/"),
        key:     cfg.RedmineAPIKey,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
        loc:     cfg.Location(),
        backoff: 300 * time.Millisecond,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := c.baseURL + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// getJSON performs a GET and decodes the body into out. 429 and 5xx are
// retried with exponential backoff; other failures are classified at once.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
    if c.baseURL == "" { return errors.New("redmine: empty base URL") }
    u := c.apiURL(path, q)
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        if attempt > 0 {
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(c.backoff * time.Duration(1<<(attempt-1))):
            }
        }
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
        if err != nil { return err }
        req.Header.Set("Accept", "application/json")
        if c.key != "" { req.Header.Set("X-Redmine-API-Key", c.key) }
        resp, err := c.http.Do(req)
        if err != nil {
            if ctx.Err() != nil { return ctx.Err() }
            lastErr = &domain.UpstreamError{Kind: domain.ErrUpstreamServer, Method: http.MethodGet, Path: path, Body: err.Error()}
            continue
        }
        err = c.decode(resp, path, out)
        resp.Body.Close()
        if err == nil { return nil }
        if !errors.Is(err, domain.ErrUpstreamServer) { return err }
        lastErr = err
    }
    return lastErr
}

func (c *Client) decode(resp *http.Response, path string, out any) error {
    if kind := domain.KindForStatus(resp.StatusCode); kind != nil {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
        return &domain.UpstreamError{Kind: kind, Status: resp.StatusCode, Method: http.MethodGet, Path: path, Body: strings.TrimSpace(string(b))}
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
        return &domain.UpstreamError{Kind: domain.ErrUnsupported, Status: resp.StatusCode, Method: http.MethodGet, Path: path, Body: "decoding: " + err.Error()}
    }
    return nil
}

type ref struct {
    ID   int64  `json:"id"`
    Name string `json:"name"`
}

type projectJSON struct {
    ID     int64  `json:"id"`
    Name   string `json:"name"`
    Status int    `json:"status"`
    Parent *ref   `json:"parent"`
}

func (p projectJSON) toDomain() domain.Project {
    out := domain.Project{ID: p.ID, Name: p.Name, Status: p.Status}
    if p.Parent != nil && p.Parent.ID != 0 { out.Parent = &domain.ProjectRef{ID: p.Parent.ID, Name: p.Parent.Name} }
    return out
}

type projectsPage struct {
    Projects   []projectJSON `json:"projects"`
    TotalCount int           `json:"total_count"`
}

func (c *Client) listProjects(ctx context.Context, q url.Values, limit int, keep func(domain.Project) bool) ([]domain.Project, error) {
    var out []domain.Project
    for offset := 0; ; offset += pageSize {
        qq := cloneValues(q)
        qq.Set("offset", strconv.Itoa(offset))
        qq.Set("limit", strconv.Itoa(pageSize))
        var page projectsPage
        if err := c.getJSON(ctx, "/projects.json", qq, &page); err != nil { return nil, err }
        for _, pj := range page.Projects {
            p := pj.toDomain()
            if keep != nil && !keep(p) { continue }
            out = append(out, p)
            if limit > 0 && len(out) >= limit { return out, nil }
        }
        if len(page.Projects) < pageSize || offset+len(page.Projects) >= page.TotalCount { break }
    }
    return out, nil
}

// Projects lists every project visible to the API key.
func (c *Client) Projects(ctx context.Context) ([]domain.Project, error) {
    return c.listProjects(ctx, url.Values{}, 0, nil)
}

// ChildProjects lists projects whose parent is parentID, at most limit (0 = all).
func (c *Client) ChildProjects(ctx context.Context, parentID int64, limit int) ([]domain.Project, error) {
    q := url.Values{}
    q.Set("parent_id", strconv.FormatInt(parentID, 10))
    // older servers ignore the filter and return everything
    return c.listProjects(ctx, q, limit, func(p domain.Project) bool { return p.Parent != nil && p.Parent.ID == parentID })
}

func (c *Client) Project(ctx context.Context, id int64) (domain.Project, error) {
    var body struct{ Project projectJSON `json:"project"` }
    if err := c.getJSON(ctx, "/projects/"+strconv.FormatInt(id, 10)+".json", nil, &body); err != nil { return domain.Project{}, err }
    return body.Project.toDomain(), nil
}

// MembershipProjectIDs returns the ids of projects the API user is a member
// of. Servers that do not expose memberships yield domain.ErrUnsupported.
func (c *Client) MembershipProjectIDs(ctx context.Context) ([]int64, error) {
    var body struct {
        User struct {
            Memberships *[]struct{ Project ref `json:"project"` } `json:"memberships"`
        } `json:"user"`
    }
    q := url.Values{}
    q.Set("include", "memberships")
    if err := c.getJSON(ctx, "/users/current.json", q, &body); err != nil {
        if errors.Is(err, domain.ErrUpstreamNotFound) { return nil, fmt.Errorf("%w: %v", domain.ErrUnsupported, err) }
        return nil, err
    }
    if body.User.Memberships == nil { return nil, fmt.Errorf("%w: memberships not included", domain.ErrUnsupported) }
    ids := make([]int64, 0, len(*body.User.Memberships))
    for _, m := range *body.User.Memberships { ids = append(ids, m.Project.ID) }
    return ids, nil
}

type issueJSON struct {
    ID             int64    `json:"id"`
    Project        ref      `json:"project"`
    Status         ref      `json:"status"`
    StartDate      string   `json:"start_date"`
    DueDate        string   `json:"due_date"`
    UpdatedOn      string   `json:"updated_on"`
    ClosedOn       string   `json:"closed_on"`
    EstimatedHours *float64 `json:"estimated_hours"`
    FixedVersion   *ref     `json:"fixed_version"`
}

func (c *Client) issueToDomain(i issueJSON) domain.Issue {
    out := domain.Issue{
        ID:             i.ID,
        ProjectID:      i.Project.ID,
        StatusID:       i.Status.ID,
        StartDate:      parseDate(i.StartDate, c.loc),
        DueDate:        parseDate(i.DueDate, c.loc),
        UpdatedOn:      parseTimestamp(i.UpdatedOn, c.loc),
        ClosedOn:       parseTimestamp(i.ClosedOn, c.loc),
        EstimatedHours: i.EstimatedHours,
    }
    if i.FixedVersion != nil && i.FixedVersion.Name != "" {
        name := i.FixedVersion.Name
        out.FixedVersion = &name
    }
    return out
}

// Issues lists the issues of a project in any status. With ownOnly set,
// issues of subprojects are excluded.
func (c *Client) Issues(ctx context.Context, projectID int64, ownOnly bool) ([]domain.Issue, error) {
    var out []domain.Issue
    for offset := 0; ; offset += pageSize {
        q := url.Values{}
        q.Set("project_id", strconv.FormatInt(projectID, 10))
        q.Set("status_id", "*")
        if ownOnly { q.Set("subproject_id", "!*") }
        q.Set("offset", strconv.Itoa(offset))
        q.Set("limit", strconv.Itoa(pageSize))
        var page struct {
            Issues     []issueJSON `json:"issues"`
            TotalCount int         `json:"total_count"`
        }
        if err := c.getJSON(ctx, "/issues.json", q, &page); err != nil { return nil, err }
        for _, i := range page.Issues { out = append(out, c.issueToDomain(i)) }
        if len(page.Issues) < pageSize || offset+len(page.Issues) >= page.TotalCount { break }
    }
    return out, nil
}

type timeEntryJSON struct {
    ID      int64   `json:"id"`
    Project ref     `json:"project"`
    Issue   *ref    `json:"issue"`
    Hours   float64 `json:"hours"`
    SpentOn string  `json:"spent_on"`
}

// TimeEntries lists time entries of a project, optionally from a date on.
func (c *Client) TimeEntries(ctx context.Context, projectID int64, from *time.Time) ([]domain.TimeEntry, error) {
    var out []domain.TimeEntry
    for offset := 0; ; offset += pageSize {
        q := url.Values{}
        q.Set("project_id", strconv.FormatInt(projectID, 10))
        if from != nil { q.Set("from", from.Format("2006-01-02")) }
        q.Set("offset", strconv.Itoa(offset))
        q.Set("limit", strconv.Itoa(pageSize))
        var page struct {
            TimeEntries []timeEntryJSON `json:"time_entries"`
            TotalCount  int             `json:"total_count"`
        }
        if err := c.getJSON(ctx, "/time_entries.json", q, &page); err != nil { return nil, err }
        for _, e := range page.TimeEntries {
            te := domain.TimeEntry{ID: e.ID, ProjectID: e.Project.ID, Hours: e.Hours, SpentOn: e.SpentOn}
            if e.Issue != nil && e.Issue.ID != 0 {
                id := e.Issue.ID
                te.IssueID = &id
            }
            out = append(out, te)
        }
        if len(page.TimeEntries) < pageSize || offset+len(page.TimeEntries) >= page.TotalCount { break }
    }
    return out, nil
}

// GroupUserIDs returns the ids of the users in a group.
func (c *Client) GroupUserIDs(ctx context.Context, groupID int64) ([]int64, error) {
    var body struct {
        Group struct {
            Users []ref `json:"users"`
        } `json:"group"`
    }
    q := url.Values{}
    q.Set("include", "users")
    if err := c.getJSON(ctx, "/groups/"+strconv.FormatInt(groupID, 10)+".json", q, &body); err != nil { return nil, err }
    ids := make([]int64, 0, len(body.Group.Users))
    for _, u := range body.Group.Users { ids = append(ids, u.ID) }
    return ids, nil
}

func (c *Client) UserLogin(ctx context.Context, userID int64) (string, error) {
    var body struct {
        User struct {
            Login string `json:"login"`
        } `json:"user"`
    }
    if err := c.getJSON(ctx, "/users/"+strconv.FormatInt(userID, 10)+".json", nil, &body); err != nil { return "", err }
    return body.User.Login, nil
}

// CurrentLogin checks the credentials and returns the API user's login.
func (c *Client) CurrentLogin(ctx context.Context) (string, error) {
    var body struct {
        User struct {
            Login string `json:"login"`
        } `json:"user"`
    }
    if err := c.getJSON(ctx, "/users/current.json", nil, &body); err != nil { return "", err }
    return body.User.Login, nil
}

func cloneValues(q url.Values) url.Values {
    out := url.Values{}
    for k, v := range q { out[k] = append([]string(nil), v...) }
    return out
}

func parseDate(s string, loc *time.Location) *time.Time {
    if s == "" { return nil }
    t, err := time.ParseInLocation("2006-01-02", s, loc)
    if err != nil { return nil }
    return &t
}

func parseTimestamp(s string, loc *time.Location) *time.Time {
    if s == "" { return nil }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02 15:04:05 -0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            tt := t.In(loc)
            return &tt
        }
    }
    return nil
}
