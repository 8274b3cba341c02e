package diag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBagSortAndErrors(t *testing.T) {
	b := NewBag(0)
	b.Add(Problem{Severity: SevWarning, File: "p/B.sh", Line: 1, ColumnStart: 1, Code: DeprecatedMember})
	b.Add(Problem{Severity: SevError, File: "p/A.sh", Line: 3, ColumnStart: 5, Code: TypeUnresolved})
	b.Add(Problem{Severity: SevWarning, File: "p/A.sh", Line: 3, ColumnStart: 5, Code: DeprecatedMember})

	if !b.HasErrors() || !b.HasWarnings() {
		t.Fatal("expected both errors and warnings")
	}
	b.Sort()
	var got []Code
	for _, p := range b.Items() {
		got = append(got, p.Code)
	}
	want := []Code{TypeUnresolved, DeprecatedMember, DeprecatedMember}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sorted codes (-want,+got):\n%s", diff)
	}
	if b.Items()[2].File != "p/B.sh" {
		t.Fatalf("last problem file = %q", b.Items()[2].File)
	}
}

func TestBagLimit(t *testing.T) {
	b := NewBag(1)
	if !b.Add(Problem{}) {
		t.Fatal("first Add rejected")
	}
	if b.Add(Problem{}) {
		t.Fatal("Add over limit accepted")
	}
	other := NewBag(0)
	other.Add(Problem{Message: "x"})
	b.Merge(other)
	if b.Len() != 2 {
		t.Fatalf("Len after Merge = %d", b.Len())
	}
}

func TestFilterReporter(t *testing.T) {
	cases := []struct {
		name   string
		filter FilterReporter
		want   int
	}{
		{"all", FilterReporter{}, 3},
		{"nowarn", FilterReporter{NoWarn: true}, 1},
		{"no deprecation", FilterReporter{NoDeprecation: true}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bag := NewBag(0)
			r := c.filter
			r.Next = BagReporter{Bag: bag}
			ReportError(r, TypeUnresolved, "A.sh", 1, 1, 3, "x cannot be resolved to a type")
			ReportWarning(r, DeprecatedMember, "A.sh", 2, 1, 3, "deprecated")
			ReportWarning(r, MemberUndefined, "A.sh", 3, 1, 3, "other warning")
			if bag.Len() != c.want {
				t.Fatalf("kept %d problems, want %d", bag.Len(), c.want)
			}
		})
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(0)
	r := NewDedupReporter(BagReporter{Bag: bag})
	p := Problem{Severity: SevError, File: "A.sh", Line: 1, Message: "boom"}
	r.Report(p)
	r.Report(p)
	p.Line = 2
	r.Report(p)
	if bag.Len() != 2 {
		t.Fatalf("Len = %d, want 2", bag.Len())
	}
}

func TestCodeIDs(t *testing.T) {
	cases := map[Code]string{
		SynParseError:    "SYN1001",
		TypeUnresolved:   "TYP2001",
		DeprecatedMember: "DEP4001",
		InternalFault:    "INT9000",
		UnknownCode:      "E0000",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Errorf("%d.ID() = %q, want %q", code, got, want)
		}
	}
	if !DeprecatedType.IsDeprecation() || TypeUnresolved.IsDeprecation() {
		t.Fatal("IsDeprecation misclassifies")
	}
	if SevWarning.String() != "WARNING" || SevError.String() != "ERROR" {
		t.Fatal("severity names changed")
	}
}
