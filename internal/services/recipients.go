/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "regexp"
    "sort"
    "strings"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
    "github.com/samber/lo"
)

// Directory looks up group members and their logins upstream.
type Directory interface {
    GroupUserIDs(ctx context.Context, groupID int64) ([]int64, error)
    UserLogin(ctx context.Context, userID int64) (string, error)
}

// Recipients maps aliases and team names to mail addresses.
type Recipients struct {
    dir Directory
    rc  config.Recipients
    log zerolog.Logger
}

func NewRecipients(dir Directory, rc config.Recipients, log zerolog.Logger) *Recipients {
    return &Recipients{dir: dir, rc: rc, log: log}
}

// TotalName is the recipient token that stands for every alias member plus
// the configured extra addresses.
const TotalName = "total"

// Resolve expands a comma-separated list of recipient tokens. Tokens with
// "@" pass through; a name resolves to "total", then its teams list, then
// its group alias. The result is deduplicated and sorted.
func (r *Recipients) Resolve(ctx context.Context, raw string) ([]string, error) {
    return r.resolveTokens(ctx, strings.Split(raw, ","), map[string]bool{})
}

// ForTeam returns the recipients configured for a team alias. A team with no
// entry in the recipients file falls back to the alias of the same name.
func (r *Recipients) ForTeam(ctx context.Context, alias string) ([]string, error) {
    alias = strings.ToLower(alias)
    _, isTeam := r.rc.Teams[alias]
    _, isAlias := r.rc.Aliases[alias]
    if !isTeam && !isAlias { return nil, nil }
    return r.resolveTokens(ctx, []string{alias}, map[string]bool{})
}

// Total returns every alias member plus the configured extra addresses.
func (r *Recipients) Total(ctx context.Context) ([]string, error) {
    return r.resolveTokens(ctx, []string{TotalName}, map[string]bool{})
}

// Aliases resolves each configured group alias on its own.
func (r *Recipients) Aliases(ctx context.Context) (map[string][]string, error) {
    out := make(map[string][]string, len(r.rc.Aliases))
    for alias := range r.rc.Aliases {
        addrs, err := r.expandAlias(ctx, alias)
        if err != nil { return nil, err }
        addrs = lo.Uniq(addrs)
        sort.Strings(addrs)
        out[alias] = addrs
    }
    return out, nil
}

// resolveTokens expands tokens; expanded holds the list names already
// opened so a teams entry naming itself falls through to its group alias.
func (r *Recipients) resolveTokens(ctx context.Context, tokens []string, expanded map[string]bool) ([]string, error) {
    var out []string
    for _, tok := range tokens {
        tok = strings.TrimSpace(tok)
        if tok == "" { continue }
        if strings.Contains(tok, "@") {
            out = append(out, strings.ToLower(tok))
            continue
        }
        addrs, err := r.expandName(ctx, strings.ToLower(tok), expanded)
        if err != nil { return nil, err }
        out = append(out, addrs...)
    }
    out = lo.Uniq(out)
    sort.Strings(out)
    return out, nil
}

func (r *Recipients) expandName(ctx context.Context, name string, expanded map[string]bool) ([]string, error) {
    if !expanded[name] {
        expanded[name] = true
        if name == TotalName {
            // members come straight from the group aliases, not the teams lists
            seen := map[string]bool{TotalName: true}
            for k := range r.rc.Teams { seen[k] = true }
            return r.resolveTokens(ctx, append(lo.Keys(r.rc.Aliases), r.rc.Total...), seen)
        }
        if tokens, ok := r.rc.Teams[name]; ok { return r.resolveTokens(ctx, tokens, expanded) }
    }
    return r.expandAlias(ctx, name)
}

func (r *Recipients) expandAlias(ctx context.Context, alias string) ([]string, error) {
    groups, ok := r.rc.Aliases[alias]
    if !ok {
        r.log.Warn().Str("alias", alias).Msg("unknown recipient alias")
        return nil, nil
    }
    var out []string
    for _, gid := range groups {
        users, err := r.dir.GroupUserIDs(ctx, gid)
        if err != nil {
            if domain.IsAbort(err) { return nil, err }
            r.log.Warn().Err(err).Str("alias", alias).Int64("group_id", gid).Msg("group lookup failed")
            continue
        }
        for _, uid := range users {
            login, err := r.dir.UserLogin(ctx, uid)
            if err != nil {
                if domain.IsAbort(err) { return nil, err }
                r.log.Warn().Err(err).Int64("user_id", uid).Msg("user lookup failed")
                continue
            }
            if login == "" { continue }
            out = append(out, strings.ToLower(login)+r.rc.MailDomain)
        }
    }
    return out, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// TeamAlias maps a team name to its recipients alias.
func TeamAlias(team string) string {
    t := strings.ToLower(team)
    switch {
    case strings.Contains(t, "data"):
        return "data"
    case strings.Contains(t, "consultoria") || strings.Contains(t, "consultoría") || strings.Contains(t, "consultores"):
        return "consultoria"
    case strings.Contains(t, "desarrollo"):
        return "desarrollo"
    case strings.Contains(t, "tactica") || strings.Contains(t, "táctica"):
        return "consultores_tactica"
    case strings.Contains(t, "tecnologia") || strings.Contains(t, "tecnología"):
        return "tecnologia"
    }
    return strings.Trim(nonSlug.ReplaceAllString(t, "_"), "_")
}
