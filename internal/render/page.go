/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package render

import (
    "html"
    "strings"
)

// Page wraps a report body into a standalone HTML document.
func Page(title, body string) string {
    var b strings.Builder
    b.WriteString("<!DOCTYPE html>\n<html lang='es'>\n<head>\n<meta charset='utf-8'>\n<title>")
    b.WriteString(html.EscapeString(title))
    b.WriteString("</title>\n</head>\n<body>\n")
    b.WriteString(body)
    b.WriteString("\n</body>\n</html>\n")
    return b.String()
}

// Summary renders a narrative paragraph shown above the tables.
func Summary(text string) string {
    text = strings.TrimSpace(text)
    if text == "" { return "" }
    paras := strings.Split(text, "\n\n")
    var b strings.Builder
    b.WriteString("<div style='font-family: Arial, sans-serif; font-size: 13px; margin-bottom: 12px;'>")
    for _, p := range paras {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        b.WriteString("<p>")
        b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
        b.WriteString("</p>")
    }
    b.WriteString("</div>\n")
    return b.String()
}
