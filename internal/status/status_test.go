package status

import "testing"

func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusNew:                {StatusNotified, StatusAborted, StatusCertifiedElsewhere},
		StatusNotified:           {StatusSubmitted, StatusAborted, StatusCertifiedElsewhere},
		StatusSubmitted:          {StatusCertified, StatusAborted, StatusCertifiedElsewhere},
		StatusAborted:            {StatusNew, StatusCertifiedElsewhere},
		StatusCertified:          {},
		StatusCertifiedElsewhere: {StatusNotified, StatusSubmitted, StatusCertified, StatusAborted},
	}

	for _, from := range All() {
		legal := map[Status]bool{}
		for _, to := range allowed[from] {
			legal[to] = true
		}
		for _, to := range All() {
			if got := IsAllowed(from, to); got != legal[to] {
				t.Errorf("IsAllowed(%s, %s) = %v, want %v", from, to, got, legal[to])
			}
		}
	}
}

func TestSelfTransitionRejected(t *testing.T) {
	for _, s := range All() {
		if IsAllowed(s, s) {
			t.Errorf("IsAllowed(%s, %s) = true, want false", s, s)
		}
	}
}

func TestAllowedTargetsOrderAndContent(t *testing.T) {
	got := AllowedTargets(StatusCertifiedElsewhere)
	want := []Status{StatusNotified, StatusSubmitted, StatusCertified, StatusAborted}
	if len(got) != len(want) {
		t.Fatalf("AllowedTargets(CERTIFIED_ELSEWHERE) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllowedTargets(CERTIFIED_ELSEWHERE) = %v, want %v", got, want)
		}
	}

	if targets := AllowedTargets(StatusCertified); targets != nil {
		t.Fatalf("AllowedTargets(CERTIFIED) = %v, want empty", targets)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"CERTIFIED", StatusCertified, false},
		{" submitted ", StatusSubmitted, false},
		{"certified_elsewhere", StatusCertifiedElsewhere, false},
		{"INVOICED", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err != ErrUnknownStatus {
				t.Errorf("Parse(%q) err = %v, want ErrUnknownStatus", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("Parse(%q) = (%v, %v), want (%v, nil)", tc.in, got, err, tc.want)
		}
	}
}

func TestUnknownStatusNeverAllowed(t *testing.T) {
	if IsAllowed("SHIPPED", StatusNew) || IsAllowed(StatusNew, "SHIPPED") {
		t.Fatal("unknown status must not participate in transitions")
	}
	if AllowedTargets("SHIPPED") != nil {
		t.Fatal("unknown status must have no targets")
	}
}
