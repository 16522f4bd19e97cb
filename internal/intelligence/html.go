package intelligence

import (
	"fmt"
	"strconv"
	"strings"
)

func buildAccessReviewHTML(review AccessReview) string {
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("body{font-family:sans-serif;margin:24px;}h1{font-size:20px;}p.meta{color:#666;font-size:12px;}table{width:100%;border-collapse:collapse;}th,td{border:1px solid #ddd;padding:6px;text-align:left;vertical-align:top;font-size:12px;}th{background:#f5f5f5;}td.num{text-align:right;}tr.disabled td{color:#999;}")
	b.WriteString("</style></head><body>")
	b.WriteString("<h1>Access Review</h1>")
	b.WriteString(fmt.Sprintf("<p class=\"meta\">Generated %s for %d accounts</p>",
		htmlEscape(review.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")), len(review.Rows)))

	b.WriteString("<table><thead><tr><th>User</th><th>Email</th><th>Status</th><th>Roles</th><th>Permissions</th><th>Active Grants</th></tr></thead><tbody>")
	for _, row := range review.Rows {
		if row.Active {
			b.WriteString("<tr>")
		} else {
			b.WriteString("<tr class=\"disabled\">")
		}
		b.WriteString("<td>")
		b.WriteString(htmlEscape(row.Name))
		b.WriteString("</td><td>")
		b.WriteString(htmlEscape(row.Email))
		b.WriteString("</td><td>")
		if row.Active {
			b.WriteString("active")
		} else {
			b.WriteString("deactivated")
		}
		b.WriteString("</td><td>")
		b.WriteString(htmlEscape(strings.Join(row.Roles, ", ")))
		b.WriteString("</td><td>")
		b.WriteString(htmlEscape(strings.Join(row.Permissions, ", ")))
		b.WriteString("</td><td class=\"num\">")
		b.WriteString(strconv.Itoa(row.ActiveGrants))
		b.WriteString("</td></tr>")
	}
	b.WriteString("</tbody></table>")
	b.WriteString("</body></html>")
	return b.String()
}

func htmlEscape(v string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(v)
}
