// Package notify renders run summaries and delivers them to Slack.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/job-alert/internal/types"
)

// maxListedPostings caps how many new postings one message lists.
const maxListedPostings = 30

// Summary is the structured notification payload: the new postings of a run
// plus the failed sites worth alerting on.
type Summary struct {
	RunAt          time.Time
	TZ             string
	NewPostings    []types.Posting
	KeywordMatched int
	SuccessSites   int
	FailedSites    int
	Alerts         []types.SiteError
	Transient      []types.SiteError
	AlertThreshold int
	Heartbeat      bool
}

// BuildText renders the summary in the alert message format.
func BuildText(s Summary) string {
	localAt := s.RunAt
	if loc, err := time.LoadLocation(s.TZ); err == nil {
		localAt = s.RunAt.In(loc)
	}

	lines := []string{
		fmt.Sprintf("[건설/단기 알바 알림] %s (%s)", localAt.Format("2006-01-02 15:04"), s.TZ),
		fmt.Sprintf("신규 %d건 | 키워드 일치 %d건 | 사이트 성공 %d / 실패 %d",
			len(s.NewPostings), s.KeywordMatched, s.SuccessSites, s.FailedSites),
	}

	if len(s.NewPostings) > 0 {
		lines = append(lines, "", "신규 공고")
		for i, post := range s.NewPostings {
			if i == maxListedPostings {
				lines = append(lines, fmt.Sprintf("- ... and %d more", len(s.NewPostings)-maxListedPostings))
				break
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s - %s", post.Source, post.Title, post.URL))
		}
	} else if s.Heartbeat {
		lines = append(lines, "", "주간 상태 확인: 신규 공고 없음")
	}

	if len(s.Alerts) > 0 {
		lines = append(lines, "", "오류")
		for _, alert := range s.Alerts {
			lines = append(lines, fmt.Sprintf("- %s: %s (연속 실패 %d회)", alert.Source, alert.Message, alert.Streak))
		}
	} else if len(s.Transient) > 0 {
		lines = append(lines, "", "일시 실패(자동 재시도 중)")
		for _, warn := range s.Transient {
			lines = append(lines, fmt.Sprintf("- %s: 연속 실패 %d회 (임계치 %d회 미만)", warn.Source, warn.Streak, s.AlertThreshold))
		}
	}

	return strings.Join(lines, "\n")
}
