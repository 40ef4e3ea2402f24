package service

// Progress landmarks for the lead-in work every job performs before its
// media downloads start. The lead-in owns the first 20 points; the
// requested media stages split the remaining 80 evenly.
const (
	progressStarting  = 1
	progressMetadata  = 5
	progressThumbnail = 10
	progressLead      = 20
	progressCeiling   = 99
	progressSpan      = 100 - progressLead
)

// progressPlan maps media stages onto the job's 0-100 progress scale.
// The zero value is a plan with no media stages.
type progressPlan struct {
	stages int
}

func newProgressPlan(mediaStages int) progressPlan {
	return progressPlan{stages: mediaStages}
}

// StageStart returns the overall percentage at which media stage i begins.
func (p progressPlan) StageStart(i int) int {
	if p.stages == 0 {
		return progressLead
	}
	return progressLead + progressSpan*i/p.stages
}

// StageAt maps a stage-local percentage (0-100) into the overall scale.
// The result never reaches 100; terminal writes own that value.
func (p progressPlan) StageAt(i, localPct int) int {
	if localPct < 0 {
		localPct = 0
	}
	if localPct > 100 {
		localPct = 100
	}
	start := p.StageStart(i)
	width := p.StageStart(i+1) - start
	pct := start + width*localPct/100
	if pct > progressCeiling {
		pct = progressCeiling
	}
	return pct
}

// StageDone returns the overall percentage after media stage i completed.
func (p progressPlan) StageDone(i int) int {
	return p.StageAt(i, 100)
}
