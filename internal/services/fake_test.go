package services

import (
    "context"
    "sync"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
)

type fakeUpstream struct {
    mu         sync.Mutex
    projects   []domain.Project
    issues     map[int64][]domain.Issue
    issueErr   map[int64]error
    projectErr map[int64]error
    members    []int64
    memberErr  error
    childErr   error
    issueCalls map[int64]int
    ownOnly    []bool
}

func newFakeUpstream(projects ...domain.Project) *fakeUpstream {
    return &fakeUpstream{
        projects:   projects,
        issues:     map[int64][]domain.Issue{},
        issueErr:   map[int64]error{},
        projectErr: map[int64]error{},
        issueCalls: map[int64]int{},
        memberErr:  domain.ErrUnsupported,
    }
}

func (f *fakeUpstream) Projects(context.Context) ([]domain.Project, error) {
    return append([]domain.Project(nil), f.projects...), nil
}

func (f *fakeUpstream) MembershipProjectIDs(context.Context) ([]int64, error) {
    if f.memberErr != nil { return nil, f.memberErr }
    return f.members, nil
}

func (f *fakeUpstream) Project(_ context.Context, id int64) (domain.Project, error) {
    if err := f.projectErr[id]; err != nil { return domain.Project{}, err }
    for _, p := range f.projects { if p.ID == id { return p, nil } }
    return domain.Project{}, &domain.UpstreamError{Kind: domain.ErrUpstreamNotFound, Status: 404}
}

func (f *fakeUpstream) ChildProjects(_ context.Context, parentID int64, limit int) ([]domain.Project, error) {
    if f.childErr != nil { return nil, f.childErr }
    var out []domain.Project
    for _, p := range f.projects {
        if p.Parent != nil && p.Parent.ID == parentID { out = append(out, p) }
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (f *fakeUpstream) Issues(_ context.Context, projectID int64, ownOnly bool) ([]domain.Issue, error) {
    f.mu.Lock()
    f.issueCalls[projectID]++
    f.ownOnly = append(f.ownOnly, ownOnly)
    f.mu.Unlock()
    if err := f.issueErr[projectID]; err != nil { return nil, err }
    return f.issues[projectID], nil
}

type fakeEntries struct {
    entries map[int64][]domain.TimeEntry
    err     map[int64]error
}

func (f *fakeEntries) TimeEntries(_ context.Context, projectID int64, _ int) ([]domain.TimeEntry, error) {
    if f.err != nil && f.err[projectID] != nil { return nil, f.err[projectID] }
    return f.entries[projectID], nil
}

type fakeDirectory struct {
    groups map[int64][]int64
    logins map[int64]string
    err    map[int64]error
}

func (d *fakeDirectory) GroupUserIDs(_ context.Context, id int64) ([]int64, error) {
    if d.err != nil && d.err[id] != nil { return nil, d.err[id] }
    return d.groups[id], nil
}

func (d *fakeDirectory) UserLogin(_ context.Context, id int64) (string, error) {
    return d.logins[id], nil
}

type fakeMailer struct {
    mu   sync.Mutex
    sent []domain.Email
    err  error
}

func (m *fakeMailer) Send(_ context.Context, e domain.Email) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.err != nil { return m.err }
    m.sent = append(m.sent, e)
    return nil
}

type fakeSummarizer struct{ text string }

func (s fakeSummarizer) Enabled() bool { return true }
func (s fakeSummarizer) Summarize(context.Context, string, []domain.AggregateRecord) (string, error) {
    return s.text, nil
}

type fakeNotifier struct{ texts []string }

func (n *fakeNotifier) Enabled() bool { return true }
func (n *fakeNotifier) Notify(_ context.Context, text string) error {
    n.texts = append(n.texts, text)
    return nil
}

// fixture helpers

var testNow = time.Date(2025, 6, 11, 10, 0, 5, 0, time.UTC)

func project(id int64, name string, parent *domain.Project) domain.Project {
    p := domain.Project{ID: id, Name: name, Status: domain.ProjectStatusActive}
    if parent != nil { p.Parent = &domain.ProjectRef{ID: parent.ID, Name: parent.Name} }
    return p
}

func at(s string) *time.Time {
    t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
    if err != nil { panic(err) }
    t = t.Add(12 * time.Hour)
    return &t
}

func date(s string) *time.Time {
    t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
    if err != nil { panic(err) }
    return &t
}

func hours(h float64) *float64 { return &h }
func str(s string) *string      { return &s }
func id(i int64) *int64         { return &i }

type fakeLocker struct {
    held     bool
    err      error
    acquired int
    released int
}

func (l *fakeLocker) TryLock(context.Context) (func(), bool, error) {
    if l.err != nil { return nil, false, l.err }
    if l.held { return nil, false, nil }
    l.held = true
    l.acquired++
    return func() { l.held = false; l.released++ }, true, nil
}
