package service

import "testing"

func TestProgressPlanStageStart(t *testing.T) {
	testCases := []struct {
		name   string
		stages int
		stage  int
		want   int
	}{
		{name: "no media stages", stages: 0, stage: 0, want: 20},
		{name: "single stage", stages: 1, stage: 0, want: 20},
		{name: "second of two", stages: 2, stage: 1, want: 60},
		{name: "first of three", stages: 3, stage: 0, want: 20},
		{name: "second of three", stages: 3, stage: 1, want: 46},
		{name: "third of three", stages: 3, stage: 2, want: 73},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := newProgressPlan(tc.stages)
			if got := plan.StageStart(tc.stage); got != tc.want {
				t.Errorf("StageStart(%d) with %d stages = %d, want %d", tc.stage, tc.stages, got, tc.want)
			}
		})
	}
}

func TestProgressPlanStageAt(t *testing.T) {
	testCases := []struct {
		name     string
		stages   int
		stage    int
		localPct int
		want     int
	}{
		{name: "single stage halfway", stages: 1, stage: 0, localPct: 50, want: 60},
		{name: "single stage done stays under 100", stages: 1, stage: 0, localPct: 100, want: 99},
		{name: "two stages first done", stages: 2, stage: 0, localPct: 100, want: 60},
		{name: "two stages second halfway", stages: 2, stage: 1, localPct: 50, want: 80},
		{name: "three stages first halfway", stages: 3, stage: 0, localPct: 50, want: 33},
		{name: "negative local clamps to start", stages: 2, stage: 1, localPct: -5, want: 60},
		{name: "overshoot local clamps to done", stages: 2, stage: 0, localPct: 140, want: 60},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := newProgressPlan(tc.stages)
			if got := plan.StageAt(tc.stage, tc.localPct); got != tc.want {
				t.Errorf("StageAt(%d, %d) with %d stages = %d, want %d",
					tc.stage, tc.localPct, tc.stages, got, tc.want)
			}
		})
	}
}

func TestProgressPlanLastStageNeverReaches100(t *testing.T) {
	for stages := 1; stages <= 4; stages++ {
		plan := newProgressPlan(stages)
		if got := plan.StageDone(stages - 1); got != 99 {
			t.Errorf("StageDone(last) with %d stages = %d, want 99", stages, got)
		}
	}
}
