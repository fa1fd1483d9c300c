package vectorstore

import "testing"

func TestBuildCompanyFilter(t *testing.T) {
	got := buildCompanyFilter([]uint{7})
	want := "company_id in [7]"
	if got != want {
		t.Errorf("buildCompanyFilter single = %q, want %q", got, want)
	}

	got = buildCompanyFilter([]uint{1, 7, 8})
	want = "company_id in [1, 7, 8]"
	if got != want {
		t.Errorf("buildCompanyFilter multi = %q, want %q", got, want)
	}
}
