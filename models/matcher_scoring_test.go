package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func breakerCatalog() []*Component {
	return []*Component{
		{
			ID:           1,
			ItemName:     "20A Breaker",
			ItClass:      "MCB",
			Manufacturer: "Schneider",
			ModelNumber:  "IC60N-20",
			UnitPrice:    decimal.NewFromFloat(12.50),
		},
		{
			ID:           2,
			ItemName:     "32A Breaker",
			ItClass:      "MCB",
			Manufacturer: "Schneider",
			ModelNumber:  "IC60N-32",
			UnitPrice:    decimal.NewFromFloat(14.00),
		},
		{
			ID:       3,
			ItemName: "Distribution Board 12 Way",
			ItClass:  "PANEL",
		},
	}
}

func TestNormalizeTextSortsAndStripsTokens(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Breaker, 20A", "20a breaker"},
		{"20a   BREAKER", "20a breaker"},
		{"  MCB (3-pole) ", "3 mcb pole"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeText(tc.in); got != tc.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestScoreComponentExactTextIsFull(t *testing.T) {
	comp := &Component{ItemName: "20A Breaker", Manufacturer: "Schneider", ModelNumber: "IC60N-20"}
	got := ScoreComponent("Schneider IC60N-20 20A Breaker", comp)
	if got != 100 {
		t.Fatalf("exact identity text scored %d, want 100", got)
	}
}

func TestScoreComponentTokenOrderInsensitive(t *testing.T) {
	comp := &Component{ItemName: "20A Breaker"}
	a := ScoreComponent("20a breaker", comp)
	b := ScoreComponent("breaker 20a", comp)
	if a != b {
		t.Fatalf("token order changed the score: %d vs %d", a, b)
	}
}

func TestScoreComponentModelMentionBoosts(t *testing.T) {
	raw := "breaker ic60n 20"
	withModel := ScoreComponent(raw, &Component{ItemName: "Breaker", ModelNumber: "IC60N-20"})
	withoutModel := ScoreComponent(raw, &Component{ItemName: "Breaker"})
	if withModel <= withoutModel {
		t.Fatalf("model mention did not boost: withModel=%d withoutModel=%d", withModel, withoutModel)
	}
}

func TestScoreComponentManufacturerMentionBoosts(t *testing.T) {
	raw := "breaker schneider"
	withMfr := ScoreComponent(raw, &Component{ItemName: "Breaker", Manufacturer: "Schneider"})
	withoutMfr := ScoreComponent(raw, &Component{ItemName: "Breaker"})
	if withMfr <= withoutMfr {
		t.Fatalf("manufacturer mention did not boost: withMfr=%d withoutMfr=%d", withMfr, withoutMfr)
	}
}

func TestScoreComponentPrefersCloserEntry(t *testing.T) {
	catalog := breakerCatalog()
	s20 := ScoreComponent("20 amp breaker", catalog[0])
	s32 := ScoreComponent("20 amp breaker", catalog[1])
	sBoard := ScoreComponent("20 amp breaker", catalog[2])
	if s20 <= s32 {
		t.Fatalf("20A entry should outscore 32A entry: %d vs %d", s20, s32)
	}
	if s20 <= sBoard {
		t.Fatalf("20A entry should outscore distribution board: %d vs %d", s20, sBoard)
	}
}

func TestRankCandidatesTieBreaksOnDescriptionDepth(t *testing.T) {
	shallow := &Component{ID: 10, ItemName: "Cable Tray 100mm"}
	deep := &Component{
		ID:       20,
		ItemName: "Cable Tray 100mm",
		ItemDesc: "Hot dip galvanised",
		ItDesc2:  "3m lengths",
	}
	ranked := rankCandidates("cable tray 100mm", []*Component{shallow, deep})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].Score != ranked[1].Score {
		t.Fatalf("expected a score tie, got %d vs %d", ranked[0].Score, ranked[1].Score)
	}
	if ranked[0].Component.ID != 20 {
		t.Fatalf("tie should prefer the deeper entry, got component %d first", ranked[0].Component.ID)
	}
}

func TestRankCandidatesTieBreaksOnLowerId(t *testing.T) {
	a := &Component{ID: 7, ItemName: "Earth Rod"}
	b := &Component{ID: 3, ItemName: "Earth Rod"}
	ranked := rankCandidates("earth rod", []*Component{a, b})
	if ranked[0].Component.ID != 3 {
		t.Fatalf("equal depth tie should prefer lower id, got %d first", ranked[0].Component.ID)
	}
}

func TestClassifyDetectionAutoMatch(t *testing.T) {
	t.Setenv("AUTO_MATCH_THRESHOLD", "75")

	detection := DetectedComponent{RawText: "20 amp breaker", ItClass: "MCB"}
	classifyDetection(&detection, breakerCatalog())

	if detection.MatchStatus != MatchStatusMatched {
		t.Fatalf("status = %s, want matched (confidence %s)", detection.MatchStatus, detection.MatchConfidence)
	}
	if detection.MatchMethod == nil || *detection.MatchMethod != MatchMethodAuto {
		t.Fatalf("match method = %v, want auto", detection.MatchMethod)
	}
	if detection.MatchedID == nil || *detection.MatchedID != 1 {
		t.Fatalf("matched id = %v, want 1", detection.MatchedID)
	}
}

func TestClassifyDetectionReviewBand(t *testing.T) {
	// default thresholds: near-match lands between review (70) and auto (85)
	detection := DetectedComponent{RawText: "20 amp breaker", ItClass: "MCB"}
	classifyDetection(&detection, breakerCatalog())

	if detection.MatchStatus != MatchStatusReview {
		t.Fatalf("status = %s, want review (confidence %s)", detection.MatchStatus, detection.MatchConfidence)
	}
	if detection.MatchMethod != nil {
		t.Fatalf("review detections carry no match method, got %v", *detection.MatchMethod)
	}
	if detection.MatchedID == nil || *detection.MatchedID != 1 {
		t.Fatalf("review detections keep the suggestion, got %v", detection.MatchedID)
	}
}

func TestClassifyDetectionNewWhenNothingClose(t *testing.T) {
	detection := DetectedComponent{RawText: "flexible conduit 25mm grey"}
	classifyDetection(&detection, breakerCatalog())

	if detection.MatchStatus != MatchStatusNew {
		t.Fatalf("status = %s, want new (confidence %s)", detection.MatchStatus, detection.MatchConfidence)
	}
	if detection.MatchedID != nil {
		t.Fatalf("new detections carry no match, got component %d", *detection.MatchedID)
	}
}

func TestClassifyDetectionEmptyCatalog(t *testing.T) {
	detection := DetectedComponent{RawText: "20 amp breaker"}
	classifyDetection(&detection, nil)

	if detection.MatchStatus != MatchStatusNew {
		t.Fatalf("status = %s, want new", detection.MatchStatus)
	}
	if !detection.MatchConfidence.IsZero() {
		t.Fatalf("confidence = %s, want 0", detection.MatchConfidence)
	}
}

func TestClassifyDetectionDeterministicAcrossReruns(t *testing.T) {
	catalog := breakerCatalog()
	first := DetectedComponent{RawText: "32a breaker schneider", ItClass: "MCB"}
	classifyDetection(&first, catalog)

	for i := 0; i < 5; i++ {
		rerun := DetectedComponent{RawText: "32a breaker schneider", ItClass: "MCB"}
		classifyDetection(&rerun, catalog)
		if rerun.MatchStatus != first.MatchStatus || !rerun.MatchConfidence.Equal(first.MatchConfidence) {
			t.Fatalf("rerun %d diverged: %s/%s vs %s/%s", i,
				rerun.MatchStatus, rerun.MatchConfidence, first.MatchStatus, first.MatchConfidence)
		}
	}
}

func TestCatalogIndexClassFilter(t *testing.T) {
	idx := catalogIndex{byClass: map[string][]*Component{}}
	idx.all = breakerCatalog()
	for _, comp := range idx.all {
		idx.byClass[comp.ItClass] = append(idx.byClass[comp.ItClass], comp)
	}

	mcb := idx.candidates("mcb")
	if len(mcb) != 2 {
		t.Fatalf("expected 2 MCB candidates, got %d", len(mcb))
	}
	// unknown class falls back to the whole catalog
	if got := idx.candidates("BUSBAR"); len(got) != len(idx.all) {
		t.Fatalf("unknown class should fall back to all, got %d", len(got))
	}
	if got := idx.candidates(""); len(got) != len(idx.all) {
		t.Fatalf("empty class should use all, got %d", len(got))
	}
}
