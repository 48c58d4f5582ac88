package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
)

func TestRatingInputValidate(t *testing.T) {
	good := RatingInput{Quality: 4, Timeliness: 5, Communication: 3, Value: 4}
	if err := good.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}

	cases := []struct {
		name string
		in   RatingInput
	}{
		{"quality too low", RatingInput{Quality: 0, Timeliness: 3, Communication: 3, Value: 3}},
		{"timeliness too high", RatingInput{Quality: 3, Timeliness: 6, Communication: 3, Value: 3}},
		{"zero value", RatingInput{Quality: 3, Timeliness: 3, Communication: 3}},
	}
	for _, tc := range cases {
		err := tc.in.validate()
		if err == nil {
			t.Errorf("%s: validate() = nil, want error", tc.name)
			continue
		}
		if fault.HTTPStatus(err) != 422 {
			t.Errorf("%s: HTTPStatus = %d, want 422", tc.name, fault.HTTPStatus(err))
		}
	}
}

func TestRatingInputOverall(t *testing.T) {
	r := RatingInput{Quality: 5, Timeliness: 4, Communication: 4, Value: 4}
	if got := r.Overall(); got != 4.25 {
		t.Errorf("Overall() = %v, want 4.25", got)
	}
	if got := r.OverallInt(); got != 4 {
		t.Errorf("OverallInt() = %d, want 4", got)
	}

	r = RatingInput{Quality: 5, Timeliness: 5, Communication: 4, Value: 4}
	if got := r.OverallInt(); got != 5 {
		t.Errorf("OverallInt() = %d, want 5 (round half up)", got)
	}
}

func TestDefectInputValidate(t *testing.T) {
	deadline := time.Now().Add(72 * time.Hour)
	good := DefectInput{Title: "Cracked tile", Severity: "major", Deadline: &deadline}
	if err := good.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}

	if err := (DefectInput{Severity: "major"}).validate(); err == nil {
		t.Error("missing title accepted")
	}

	err := (DefectInput{Title: "Leak", Severity: "catastrophic"}).validate()
	if err == nil {
		t.Fatal("unknown severity accepted")
	}
	if !strings.Contains(err.Error(), "catastrophic") {
		t.Errorf("error should name the rejected severity, got %q", err)
	}
}
