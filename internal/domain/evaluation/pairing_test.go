package evaluation

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"examforge/internal/domain/model"
)

func testCases(ids ...string) []model.TestCase {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.TestCase, len(ids))
	for i, id := range ids {
		out[i] = model.TestCase{ID: id, Input: "in-" + id, ExpectedOutput: "out-" + id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestPair(t *testing.T) {
	tcs := testCases("a", "b", "c")
	results := []Result{
		{ReceivedOutput: "out-a"},
		{ReceivedOutput: "out-b\n"},
		{ReceivedOutput: "out-c", Failed: true},
	}

	got, err := Pair(tcs, results)
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	wantAccepted := []bool{true, false, false}
	for i, r := range got {
		if r.TestCaseID != tcs[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, tcs[i].ID, r.TestCaseID)
		}
		if r.Accepted != wantAccepted[i] {
			t.Fatalf("test case %s: expected accepted=%v", r.TestCaseID, wantAccepted[i])
		}
		if r.Input != tcs[i].Input || r.ExpectedOutput != tcs[i].ExpectedOutput || r.ReceivedOutput != results[i].ReceivedOutput {
			t.Fatalf("test case %s: fields not carried over: %+v", r.TestCaseID, r)
		}
	}
}

func TestPairEmpty(t *testing.T) {
	got, err := Pair(nil, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v (err %v)", got, err)
	}
}

func TestPairLengthMismatch(t *testing.T) {
	_, err := Pair(testCases("a", "b"), []Result{{ReceivedOutput: "x"}})
	if !errors.Is(err, ErrResultCountMismatch) {
		t.Fatalf("expected count mismatch, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	placeholder := func(id string) model.TestCaseOutput {
		return model.TestCaseOutput{TestCaseID: id, ReceivedOutput: model.PlaceholderOutput}
	}
	tests := []struct {
		name     string
		current  []model.TestCase
		existing []model.TestCaseOutput
		fresh    []model.TestCaseOutput
		want     []model.TestCaseOutput
	}{
		{
			name:    "first save",
			current: testCases("a", "b"),
			fresh:   Placeholders(testCases("a", "b")),
			want:    []model.TestCaseOutput{placeholder("a"), placeholder("b")},
		},
		{
			name:     "fresh overrides by id",
			current:  testCases("a", "b"),
			existing: []model.TestCaseOutput{{TestCaseID: "a", Accepted: true, ReceivedOutput: "out-a"}, placeholder("b")},
			fresh:    []model.TestCaseOutput{{TestCaseID: "b", Accepted: true, ReceivedOutput: "out-b"}},
			want: []model.TestCaseOutput{
				{TestCaseID: "a", Accepted: true, ReceivedOutput: "out-a"},
				{TestCaseID: "b", Accepted: true, ReceivedOutput: "out-b"},
			},
		},
		{
			name:     "new test case gets a placeholder",
			current:  testCases("a", "b", "c"),
			existing: []model.TestCaseOutput{{TestCaseID: "a", Accepted: true, ReceivedOutput: "out-a"}},
			want: []model.TestCaseOutput{
				{TestCaseID: "a", Accepted: true, ReceivedOutput: "out-a"},
				placeholder("b"),
				placeholder("c"),
			},
		},
		{
			name:     "removed test case is dropped",
			current:  testCases("b"),
			existing: []model.TestCaseOutput{placeholder("a"), {TestCaseID: "b", ReceivedOutput: "x"}},
			fresh:    []model.TestCaseOutput{{TestCaseID: "zz", Accepted: true}},
			want:     []model.TestCaseOutput{{TestCaseID: "b", ReceivedOutput: "x"}},
		},
		{
			name:     "order follows current test cases",
			current:  testCases("c", "a"),
			existing: []model.TestCaseOutput{{TestCaseID: "a", ReceivedOutput: "1"}, {TestCaseID: "c", ReceivedOutput: "2"}},
			want:     []model.TestCaseOutput{{TestCaseID: "c", ReceivedOutput: "2"}, {TestCaseID: "a", ReceivedOutput: "1"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.current, tc.existing, tc.fresh)
			if len(got) != len(tc.current) {
				t.Fatalf("expected %d outputs, got %d", len(tc.current), len(got))
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestSelectAndSort(t *testing.T) {
	tcs := testCases("a", "b", "c")
	if got, err := Select(tcs, nil); err != nil || len(got) != 3 {
		t.Fatalf("empty selection keeps everything, got %d (%v)", len(got), err)
	}
	got, err := Select(tcs, []string{"c", "a"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("selection must follow the requested order, got %+v", got)
	}
	for _, ids := range [][]string{{"a", "zz"}, {"b", "b"}} {
		if _, err := Select(tcs, ids); !errors.Is(err, ErrUnknownTestCase) {
			t.Fatalf("expected ErrUnknownTestCase for %v, got %v", ids, err)
		}
	}

	shuffled := []model.TestCase{tcs[2], tcs[0], tcs[1]}
	shuffled[0].CreatedAt = tcs[0].CreatedAt // tie with "a", broken by id
	SortTestCases(shuffled)
	ids := []string{shuffled[0].ID, shuffled[1].ID, shuffled[2].ID}
	if !reflect.DeepEqual(ids, []string{"a", "c", "b"}) {
		t.Fatalf("unexpected order %v", ids)
	}
}
