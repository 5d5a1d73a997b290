package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/noahxzhu/redmine-notify/internal/model"
)

const (
	EachBanner  = "REDMINEの更新を検知\n\n"
	DailyBanner = "デイリーRedmine更新チケットまとめ\n\n"
	ErrorBanner = "*ERROR OCCURRED!!*"
)

var separator = strings.Repeat("=", 60)

// IssueBlock formats one issue with its already rendered summary.
func IssueBlock(issue model.Issue, summary string) string {
	var b strings.Builder
	b.WriteString(separator)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "番号　　　： `%s` \n", issue.ID)
	fmt.Fprintf(&b, "題名　　　： *%s* \n", issue.Title)
	fmt.Fprintf(&b, "ステータス：%s\n", issue.Status)
	fmt.Fprintf(&b, "担当者　　：%s\n", issue.Assignee)
	fmt.Fprintf(&b, "更新日　　：%s\n", issue.UpdatedAt.Format(model.UpdatedLayout))
	fmt.Fprintf(&b, "概要/状況 ：%s\n\n", summary)
	return b.String()
}

func EachUpdateMessage(issue model.Issue, summary string) string {
	return EachBanner + IssueBlock(issue, summary)
}

// DailyDigestMessage joins the issue blocks under the daily banner and stamps
// the time the digest was built.
func DailyDigestMessage(blocks []string, now time.Time) string {
	footer := fmt.Sprintf("\n\n\n`更新時間:%s`", now.Format(model.WatermarkLayout))
	return DailyBanner + strings.Join(blocks, "\n") + footer
}

func ErrorMessage(err error) string {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	return ErrorBanner + "```" + msg + "```"
}
