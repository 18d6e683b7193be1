package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/job-alert/internal/types"
)

func summaryFixture() Summary {
	return Summary{
		RunAt:          time.Date(2026, 8, 29, 22, 30, 0, 0, time.UTC),
		TZ:             "Australia/Melbourne",
		KeywordMatched: 5,
		SuccessSites:   2,
		FailedSites:    1,
		AlertThreshold: 2,
		NewPostings: []types.Posting{
			{Source: "woorimel", Title: "건설 잡부 급구", URL: "http://woorimel.example/101"},
			{Source: "hojubada", Title: "데몰리션 단기", URL: "http://hojubada.example/202"},
		},
		Alerts: []types.SiteError{
			{Source: "melbsky", Message: "connection refused", Streak: 3},
		},
	}
}

func TestBuildText(t *testing.T) {
	text := BuildText(summaryFixture())

	// The run timestamp renders in local time: 22:30 UTC is 08:30 next day in
	// Melbourne during AEST.
	wantLines := []string{
		"[건설/단기 알바 알림] 2026-08-30 08:30 (Australia/Melbourne)",
		"신규 2건 | 키워드 일치 5건 | 사이트 성공 2 / 실패 1",
		"신규 공고",
		"- [woorimel] 건설 잡부 급구 - http://woorimel.example/101",
		"- [hojubada] 데몰리션 단기 - http://hojubada.example/202",
		"오류",
		"- melbsky: connection refused (연속 실패 3회)",
	}
	for _, line := range wantLines {
		if !strings.Contains(text, line) {
			t.Errorf("missing line %q in:\n%s", line, text)
		}
	}
}

func TestBuildTextCapsListedPostings(t *testing.T) {
	s := summaryFixture()
	s.NewPostings = nil
	for i := 0; i < 42; i++ {
		s.NewPostings = append(s.NewPostings, types.Posting{
			Source: "woorimel",
			Title:  fmt.Sprintf("공고 %d", i),
			URL:    fmt.Sprintf("http://woorimel.example/%d", i),
		})
	}

	text := BuildText(s)
	if got := strings.Count(text, "- [woorimel]"); got != 30 {
		t.Errorf("listed %d postings, want 30", got)
	}
	if !strings.Contains(text, "- ... and 12 more") {
		t.Errorf("missing overflow line in:\n%s", text)
	}
}

func TestBuildTextTransientSection(t *testing.T) {
	s := summaryFixture()
	s.Alerts = nil
	s.Transient = []types.SiteError{{Source: "melbsky", Message: "timeout", Streak: 1}}

	text := BuildText(s)
	if strings.Contains(text, "오류") {
		t.Errorf("below-threshold failure must not render as an alert:\n%s", text)
	}
	if !strings.Contains(text, "일시 실패(자동 재시도 중)") {
		t.Errorf("missing transient section in:\n%s", text)
	}
	if !strings.Contains(text, "- melbsky: 연속 실패 1회 (임계치 2회 미만)") {
		t.Errorf("missing transient line in:\n%s", text)
	}
}

func TestBuildTextHeartbeat(t *testing.T) {
	s := summaryFixture()
	s.NewPostings = nil
	s.Alerts = nil
	s.Heartbeat = true

	text := BuildText(s)
	if !strings.Contains(text, "주간 상태 확인: 신규 공고 없음") {
		t.Errorf("missing heartbeat line in:\n%s", text)
	}
	if strings.Contains(text, "신규 공고\n") {
		t.Errorf("heartbeat must not render an empty postings section:\n%s", text)
	}
}

func TestBuildTextUnknownTZFallsBackToUTC(t *testing.T) {
	s := summaryFixture()
	s.TZ = "Not/AZone"
	text := BuildText(s)
	if !strings.Contains(text, "2026-08-29 22:30") {
		t.Errorf("expected UTC timestamp in:\n%s", text)
	}
}

func TestSlackNotify(t *testing.T) {
	var (
		gotContentType string
		gotBody        []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	slack := NewSlack(srv.URL, 5*time.Second)
	if err := slack.Notify(context.Background(), summaryFixture()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if !strings.Contains(payload["text"], "[건설/단기 알바 알림]") {
		t.Errorf("payload text = %q", payload["text"])
	}
}

func TestSlackNotifyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("no_service"))
	}))
	defer srv.Close()

	slack := NewSlack(srv.URL, 5*time.Second)
	err := slack.Notify(context.Background(), summaryFixture())
	if err == nil {
		t.Fatal("Notify: expected error for 500")
	}
	if !strings.Contains(err.Error(), "status 500") || !strings.Contains(err.Error(), "no_service") {
		t.Errorf("error should carry status and body excerpt: %v", err)
	}
}
