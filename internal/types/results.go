package types

// SiteResult is the outcome of one site's scrape attempt in one run, after
// the retry budget is exhausted. It is a tagged value: either Postings is
// populated (success, possibly empty) or Err is non-nil, never both.
type SiteResult struct {
	Source   string
	Postings []Posting
	Err      error
}

// OK reports whether the scrape succeeded.
func (r SiteResult) OK() bool {
	return r.Err == nil
}

// SiteError describes one failed site in a run summary, together with the
// site's consecutive-failure streak after this run.
type SiteError struct {
	Source  string
	Message string
	Streak  int
}

// PipelineResult summarizes one run. It is transient; only its side effects
// (notified-set inserts and streak updates) are persisted.
type PipelineResult struct {
	TotalCollected int
	KeywordMatched int
	NewPostings    []Posting
	SuccessSites   int
	FailedSites    int
	// Alerts holds failed sites whose streak reached the alert threshold;
	// Transient holds failed sites still below it.
	Alerts    []SiteError
	Transient []SiteError
	Sent      bool
}
