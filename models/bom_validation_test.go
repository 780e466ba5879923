package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

func TestNewBomItemValidateRejectsZeroQuantity(t *testing.T) {
	input := NewBomItem{Description: "Cable tray", Quantity: decimal.Zero}
	if err := input.validate(); !errors.Is(err, utils.ErrorInvalidQuantity) {
		t.Fatalf("err = %v, want ErrorInvalidQuantity", err)
	}
}

func TestNewBomItemValidateRejectsNegativeQuantity(t *testing.T) {
	input := NewBomItem{Description: "Cable tray", Quantity: dec("-2")}
	if err := input.validate(); !errors.Is(err, utils.ErrorInvalidQuantity) {
		t.Fatalf("err = %v, want ErrorInvalidQuantity", err)
	}
}

func TestNewBomItemValidateRejectsNegativeMarkup(t *testing.T) {
	markup := dec("-5")
	input := NewBomItem{Description: "Cable tray", Quantity: dec("1"), MarkupPct: &markup}
	if err := input.validate(); !errors.Is(err, utils.ErrorInvalidMarkup) {
		t.Fatalf("err = %v, want ErrorInvalidMarkup", err)
	}
}

func TestNewBomItemValidateRequiresDescriptionWithoutComponent(t *testing.T) {
	input := NewBomItem{Quantity: dec("1")}
	if err := input.validate(); err == nil {
		t.Fatal("free-form line without description should not validate")
	}
	componentId := 5
	input.ComponentID = &componentId
	if err := input.validate(); err != nil {
		t.Fatalf("line with component should validate, got %v", err)
	}
}

func TestAcceptDetectionInputValidate(t *testing.T) {
	badQty := decimal.Zero
	if err := (&AcceptDetectionInput{Quantity: &badQty}).validate(); !errors.Is(err, utils.ErrorInvalidQuantity) {
		t.Fatalf("zero quantity: err = %v, want ErrorInvalidQuantity", err)
	}
	badMarkup := dec("-1")
	if err := (&AcceptDetectionInput{MarkupPct: &badMarkup}).validate(); !errors.Is(err, utils.ErrorInvalidMarkup) {
		t.Fatalf("negative markup: err = %v, want ErrorInvalidMarkup", err)
	}
	badHours := dec("-0.5")
	if err := (&AcceptDetectionInput{LaborHours: &badHours}).validate(); err == nil {
		t.Fatal("negative labor hours should not validate")
	}
	if err := (&AcceptDetectionInput{}).validate(); err != nil {
		t.Fatalf("empty input should validate, got %v", err)
	}
}

func TestNewDetectionValidate(t *testing.T) {
	if err := (&NewDetection{RawText: "  "}).validate(); err == nil {
		t.Fatal("blank text should not validate")
	}
	zero := decimal.Zero
	if err := (&NewDetection{RawText: "breaker", Quantity: &zero}).validate(); !errors.Is(err, utils.ErrorInvalidQuantity) {
		t.Fatal("zero quantity should not validate")
	}
	if err := (&NewDetection{RawText: "breaker", ItClass: "WIDGET"}).validate(); err == nil {
		t.Fatal("unknown component class should not validate")
	}
	if err := (&NewDetection{RawText: "breaker", ItClass: "MCB"}).validate(); err != nil {
		t.Fatalf("valid detection rejected: %v", err)
	}
	if err := (&NewDetection{RawText: "breaker", Confidence: "certain"}).validate(); err == nil {
		t.Fatal("unknown confidence should not validate")
	}
	if err := (&NewDetection{RawText: "breaker", Confidence: "low"}).validate(); err != nil {
		t.Fatalf("valid confidence rejected: %v", err)
	}
}

func TestDetectionConfidenceDefaultsToMedium(t *testing.T) {
	if got := (&NewDetection{RawText: "breaker"}).confidenceLevel(); got != ConfidenceLevelMedium {
		t.Errorf("confidence = %s, want medium", got)
	}
	if got := (&NewDetection{RawText: "breaker", Confidence: "high"}).confidenceLevel(); got != ConfidenceLevelHigh {
		t.Errorf("confidence = %s, want high", got)
	}
}

func TestApplyEditsKeepsOmittedOverride(t *testing.T) {
	override := dec("180")
	item := &BomItem{
		Description:   "Distribution board",
		Quantity:      dec("2"),
		UnitPrice:     dec("100"),
		PriceOverride: &override,
		MarkupPct:     dec("10"),
	}

	// notes-only edit must not touch pricing
	item.applyEdits(&NewBomItem{Quantity: dec("2"), Notes: "per addendum 2"})
	if item.PriceOverride == nil || !item.PriceOverride.Equal(dec("180")) {
		t.Fatalf("override = %v, want 180 preserved", item.PriceOverride)
	}
	if item.Notes != "per addendum 2" {
		t.Fatalf("notes = %q", item.Notes)
	}
	if !item.LineTotal.Equal(dec("198")) {
		t.Fatalf("line total = %s, want 198", item.LineTotal)
	}

	item.applyEdits(&NewBomItem{Quantity: dec("2"), ClearPriceOverride: true})
	if item.PriceOverride != nil {
		t.Fatalf("override = %v, want cleared", item.PriceOverride)
	}
	if !item.LineTotal.Equal(dec("220")) {
		t.Fatalf("line total = %s, want 220 from unit price", item.LineTotal)
	}

	replacement := dec("150")
	item.applyEdits(&NewBomItem{Quantity: dec("2"), PriceOverride: &replacement})
	if item.PriceOverride == nil || !item.PriceOverride.Equal(dec("150")) {
		t.Fatalf("override = %v, want 150", item.PriceOverride)
	}
}

func TestLineMarkupPrecedence(t *testing.T) {
	project := &Project{DefaultMarkup: dec("15")}
	component := &Component{MarkupPct: dec("8")}

	explicit := dec("20")
	if got := lineMarkup(&explicit, component, project); !got.Equal(dec("20")) {
		t.Errorf("explicit markup = %s, want 20", got)
	}
	if got := lineMarkup(nil, component, project); !got.Equal(dec("8")) {
		t.Errorf("component markup = %s, want 8", got)
	}
	if got := lineMarkup(nil, &Component{}, project); !got.Equal(dec("15")) {
		t.Errorf("project default = %s, want 15", got)
	}
	if got := lineMarkup(nil, nil, project); !got.Equal(dec("15")) {
		t.Errorf("no component default = %s, want 15", got)
	}
}

func TestParseMatchStatus(t *testing.T) {
	for _, s := range []string{"matched", "review", "new", "rejected"} {
		if _, err := ParseMatchStatus(s); err != nil {
			t.Errorf("ParseMatchStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseMatchStatus("pending"); err == nil {
		t.Error("unknown status should not parse")
	}
}

func TestParseProjectStatus(t *testing.T) {
	for _, s := range []string{"draft", "active", "imported", "completed", "archived"} {
		if _, err := ParseProjectStatus(s); err != nil {
			t.Errorf("ParseProjectStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseProjectStatus("open"); err == nil {
		t.Error("unknown status should not parse")
	}
}

func TestParseConfidenceLevel(t *testing.T) {
	for _, s := range []string{"high", "medium", "low"} {
		if _, err := ParseConfidenceLevel(s); err != nil {
			t.Errorf("ParseConfidenceLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseConfidenceLevel("certain"); err == nil {
		t.Error("unknown confidence should not parse")
	}
}
