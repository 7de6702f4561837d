/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"
)

// Recipients is the schema of the recipients file.
//
//	mail_domain: "@example.com"
//	aliases:            # alias -> Redmine group ids
//	  data: [100]
//	teams:              # team alias -> recipient tokens
//	  data: [data, lead@example.com]
//	total: [ops@example.com]
type Recipients struct {
    MailDomain string              `yaml:"mail_domain"`
    Aliases    map[string][]int64  `yaml:"aliases"`
    Teams      map[string][]string `yaml:"teams"`
    Total      []string            `yaml:"total"`
}

func LoadRecipients(path string) (Recipients, error) {
    var rc Recipients
    data, err := os.ReadFile(path)
    if err != nil { return rc, err }
    if err := yaml.Unmarshal(data, &rc); err != nil { return rc, fmt.Errorf("parsing %s: %w", path, err) }
    rc.normalize()
    return rc, nil
}

// normalize lowercases alias and team keys so lookups are case-insensitive.
func (rc *Recipients) normalize() {
    if rc.MailDomain != "" && !strings.HasPrefix(rc.MailDomain, "@") { rc.MailDomain = "@" + rc.MailDomain }
    aliases := make(map[string][]int64, len(rc.Aliases))
    for k, v := range rc.Aliases { aliases[strings.ToLower(strings.TrimSpace(k))] = v }
    rc.Aliases = aliases
    teams := make(map[string][]string, len(rc.Teams))
    for k, v := range rc.Teams { teams[strings.ToLower(strings.TrimSpace(k))] = v }
    rc.Teams = teams
}
