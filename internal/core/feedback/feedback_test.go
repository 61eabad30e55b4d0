package feedback

import (
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/example/evoloop/internal/models"
)

func TestConsolidate_Concatenates(t *testing.T) {
	results := []InstanceResult{
		{InstanceID: "a-1", Suggestions: []string{"read the traceback", "run the tests"}},
		{InstanceID: "a-2", Suggestions: nil},
		{InstanceID: "a-3", Suggestions: []string{"run the tests", "  "}},
	}

	got := Consolidate("A", results)

	want := []string{"read the traceback", "run the tests", "run the tests"}
	if !reflect.DeepEqual(got.Texts(), want) {
		t.Errorf("Texts() = %v, want %v", got.Texts(), want)
	}
	if got.Slot != "A" {
		t.Errorf("Slot = %q, want A", got.Slot)
	}
	for _, item := range got.Items {
		if item.Slot != "A" {
			t.Errorf("item slot = %q, want A", item.Slot)
		}
	}
}

func TestConsolidate_OrderInsensitive(t *testing.T) {
	results := []InstanceResult{
		{InstanceID: "x-1", Suggestions: []string{"one", "two"}},
		{InstanceID: "x-2", Suggestions: []string{"three"}},
		{InstanceID: "x-3", Suggestions: []string{"four", "one"}},
		{InstanceID: "x-4", Suggestions: nil},
	}
	baseline := sortedTexts(Consolidate("B", results))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]InstanceResult, len(results))
		copy(shuffled, results)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Consolidate("B", shuffled)
		if !reflect.DeepEqual(sortedTexts(got), baseline) {
			t.Fatalf("shuffle %d produced a different multiset: %v vs %v", i, sortedTexts(got), baseline)
		}
		if !reflect.DeepEqual(got.Texts(), Consolidate("B", results).Texts()) {
			t.Fatalf("shuffle %d produced a different order", i)
		}
	}
}

func sortedTexts(c models.ConsolidatedFeedback) []string {
	texts := c.Texts()
	sort.Strings(texts)
	return texts
}

func TestRank(t *testing.T) {
	bySlot := map[models.Slot]models.ConsolidatedFeedback{
		"A": Consolidate("A", []InstanceResult{{InstanceID: "1", Suggestions: []string{"Run the tests", "add logging"}}}),
		"B": Consolidate("B", []InstanceResult{{InstanceID: "1", Suggestions: []string{"run  the tests"}}}),
		"C": Consolidate("C", []InstanceResult{{InstanceID: "2", Suggestions: []string{"run the tests", "check imports"}}}),
	}

	ranked := Rank(bySlot)

	if len(ranked) != 3 {
		t.Fatalf("len(ranked) = %d, want 3", len(ranked))
	}
	if ranked[0].Text != "Run the tests" || ranked[0].Count != 3 {
		t.Errorf("ranked[0] = %+v", ranked[0])
	}
	if !reflect.DeepEqual(ranked[0].Slots, []models.Slot{"A", "B", "C"}) {
		t.Errorf("ranked[0].Slots = %v", ranked[0].Slots)
	}
	if ranked[1].Text != "add logging" || ranked[2].Text != "check imports" {
		t.Errorf("tie order = %q, %q", ranked[1].Text, ranked[2].Text)
	}

	// Per-slot lists are untouched.
	if len(bySlot["A"].Items) != 2 {
		t.Error("Rank must not modify per-slot feedback")
	}
}

func TestFormatBySlot(t *testing.T) {
	bySlot := map[models.Slot]models.ConsolidatedFeedback{
		"A": Consolidate("A", []InstanceResult{{InstanceID: "1", Suggestions: []string{"x"}}}),
	}

	out := FormatBySlot(bySlot, []models.Slot{"A", "B"})

	if !strings.Contains(out, "---------- Slot A feedback ----------\n- x\n") {
		t.Errorf("missing slot A block:\n%s", out)
	}
	if !strings.Contains(out, "---------- Slot B feedback ----------\n(no suggestions)\n") {
		t.Errorf("missing empty slot B block:\n%s", out)
	}
}

func TestFormatRanked(t *testing.T) {
	if FormatRanked(nil, 5) != "(none)" {
		t.Error("expected (none) for empty ranking")
	}

	ranked := []Ranked{{Text: "a", Count: 2, Slots: []models.Slot{"A", "B"}}, {Text: "b", Count: 1, Slots: []models.Slot{"C"}}}
	out := FormatRanked(ranked, 1)
	if out != "- (2x, slots A,B) a\n" {
		t.Errorf("FormatRanked() = %q", out)
	}
}
