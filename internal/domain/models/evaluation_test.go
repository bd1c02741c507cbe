package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfusionMatrixUnlabeledColumn(t *testing.T) {
	m := NewConfusionMatrix([]string{"pos", "neg"})
	m.Add("pos", "pos")
	m.Add("pos", "")
	m.Add("neg", "pos")

	if got := m.Columns(); !cmp.Equal(got, []string{"pos", "neg", UnlabeledColumn}) {
		t.Errorf("unexpected columns %v", got)
	}
	if got := m.Labels(); !cmp.Equal(got, []string{"pos", "neg"}) {
		t.Errorf("unlabeled must never become a row, got %v", got)
	}
	if m.Count("pos", "") != 1 {
		t.Errorf("expected one unlabeled pos row")
	}
	if m.IsDiagonal() {
		t.Error("matrix with errors reported as diagonal")
	}

	want := map[LabelPair]int{
		{True: "pos", Predicted: "pos"}: 1,
		{True: "pos", Predicted: ""}:    1,
		{True: "neg", Predicted: "pos"}: 1,
	}
	if diff := cmp.Diff(want, m.Pairs()); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(m.String(), UnlabeledColumn) {
		t.Errorf("table should show the unlabeled column:\n%s", m.String())
	}
}

func TestConfusionMatrixJSONRoundTrip(t *testing.T) {
	m := NewConfusionMatrix([]string{"a", "b"})
	m.Add("a", "a")
	m.Add("a", "b")
	m.Add("b", "")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"counts":[[1,1,0],[0,0,1]]`) {
		t.Errorf("unexpected encoding %s", data)
	}

	decoded := &ConfusionMatrix{}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(m.Pairs(), decoded.Pairs()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelPairString(t *testing.T) {
	if got := (LabelPair{True: "A", Predicted: "B"}).String(); got != "A -> B" {
		t.Errorf("got %q", got)
	}
	if got := (LabelPair{True: "A"}).String(); got != "A -> unlabeled" {
		t.Errorf("got %q", got)
	}
}
