package cycle

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/example/evoloop/internal/models"
)

func TestSample(t *testing.T) {
	pool := []models.TaskInstance{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, err := Sample(rand.New(rand.NewSource(1)), pool, 9)
	if err != nil {
		t.Fatalf("Sample() error: %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("len = %d, want 9", len(got))
	}
	for _, inst := range got {
		if inst.ID != "a" && inst.ID != "b" && inst.ID != "c" {
			t.Errorf("unexpected instance %q", inst.ID)
		}
	}

	again, _ := Sample(rand.New(rand.NewSource(1)), pool, 9)
	if !reflect.DeepEqual(got, again) {
		t.Error("same seed should give the same batch")
	}
}

func TestSample_LargerThanPool(t *testing.T) {
	pool := []models.TaskInstance{{ID: "only"}}

	got, err := Sample(rand.New(rand.NewSource(3)), pool, 4)
	if err != nil {
		t.Fatalf("Sample() error: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("len = %d, want 4 (sampling is with replacement)", len(got))
	}
}

func TestSample_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := Sample(rng, nil, 3); err == nil {
		t.Error("expected error for empty pool")
	}
	if _, err := Sample(rng, []models.TaskInstance{{ID: "x"}}, 0); err == nil {
		t.Error("expected error for zero batch")
	}
}
