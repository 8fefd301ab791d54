package calibration

import "testing"

func TestDefaultGrade(t *testing.T) {
	tbl := Default()
	cases := []struct {
		value float64
		want  byte
	}{
		{0.97, 'A'},
		{0.85, 'B'},
		{0.70, 'C'},
		{0.55, 'D'},
		{0.10, 'F'},
	}
	for _, c := range cases {
		if got := tbl.Grade("overall", c.value); got != c.want {
			t.Errorf("Grade(overall, %v) = %c, want %c", c.value, got, c.want)
		}
	}
}

func TestGradeMissingMetricIsN(t *testing.T) {
	tbl := Default()
	if got := tbl.Grade("unknown_metric", 0.99); got != 'N' {
		t.Errorf("Grade(unknown) = %c, want N", got)
	}
}

func TestGradeNilTableIsN(t *testing.T) {
	var tbl *Table
	if got := tbl.Grade("overall", 0.99); got != 'N' {
		t.Errorf("Grade on nil table = %c, want N", got)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := []byte(`
metrics:
  overall:
    - grade: A
      min: 0.9
    - grade: F
      min: 0
`)
	tbl, err := Load(doc)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tbl.Grade("overall", 0.95); got != 'A' {
		t.Errorf("Grade = %c, want A", got)
	}
	if got := tbl.Grade("overall", 0.1); got != 'F' {
		t.Errorf("Grade = %c, want F", got)
	}
}
