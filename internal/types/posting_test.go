package types

import "testing"

func TestDedupePostings(t *testing.T) {
	postings := []Posting{
		{Source: "woorimel", SourcePostID: "wr_id:1", Title: "first"},
		{Source: "woorimel", SourcePostID: "wr_id:2", Title: "second"},
		{Source: "woorimel", SourcePostID: "wr_id:1", Title: "duplicate of first"},
		{Source: "melbsky", SourcePostID: "wr_id:1", Title: "same id, different source"},
	}

	got := DedupePostings(postings)
	if len(got) != 3 {
		t.Fatalf("DedupePostings returned %d postings, want 3", len(got))
	}
	if got[0].Title != "first" || got[1].Title != "second" || got[2].Source != "melbsky" {
		t.Errorf("DedupePostings changed order or kept the wrong duplicate: %+v", got)
	}
}

func TestSiteResultOK(t *testing.T) {
	ok := SiteResult{Source: "woorimel", Postings: nil}
	if !ok.OK() {
		t.Error("a result without an error should be OK, even with zero postings")
	}
}
