package marketdata

// RefreshJob recomputes market aggregates on a schedule. Implements the
// scheduler Job interface.
type RefreshJob struct {
	repo         *Repository
	lookbackDays int
}

// NewRefreshJob creates the nightly aggregate refresh job
func NewRefreshJob(repo *Repository, lookbackDays int) *RefreshJob {
	return &RefreshJob{repo: repo, lookbackDays: lookbackDays}
}

// Name returns the job identifier used in scheduler logs
func (j *RefreshJob) Name() string {
	return "market-aggregate-refresh"
}

// Run refreshes the aggregate table
func (j *RefreshJob) Run() error {
	return j.repo.RefreshAggregates(j.lookbackDays)
}
