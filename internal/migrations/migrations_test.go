package migrations

import (
	"errors"
	"strings"
	"testing"

	"gorow/internal/formats/rws"
)

func addColumn(name string, value float64) Transform {
	return func(t rws.Table) (rws.Table, error) {
		values := make([]float64, t.Len())
		for i := range values {
			values[i] = value
		}
		t.Set(name, values)
		return t, nil
	}
}

func sampleTable() rws.Table {
	t := rws.Table{}
	t.Set("power_watts", []float64{120, 130})
	t.SetSchemaVersion(1)
	return t
}

func TestPathSameVersion(t *testing.T) {
	r := NewRegistry()
	path, err := r.Path(3, 3)
	if err != nil || len(path) != 0 {
		t.Fatalf("got %v, %v", path, err)
	}
}

func TestPathDowngrade(t *testing.T) {
	r := NewRegistry()
	r.Register(1, 2, "", addColumn("a", 0))
	_, err := r.Path(2, 1)
	var ce *ChainError
	if !errors.As(err, &ce) || !strings.Contains(err.Error(), "downgrade") {
		t.Fatalf("got %v", err)
	}
}

func TestPathMissingStep(t *testing.T) {
	r := NewRegistry()
	r.Register(1, 2, "", addColumn("a", 0))
	r.Register(3, 4, "", addColumn("b", 0))
	_, err := r.Path(1, 4)
	var ce *ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v", err)
	}
	if ce.From != 2 || ce.To != 3 || !strings.Contains(err.Error(), "no migration found from v2 to v3") {
		t.Fatalf("wrong pair in %v", err)
	}
}

func TestPathOrdered(t *testing.T) {
	r := NewRegistry()
	r.Register(2, 3, "", addColumn("b", 0))
	r.Register(1, 2, "", addColumn("a", 0))
	path, err := r.Path(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 2 || path[0].From != 1 || path[1].From != 2 {
		t.Fatalf("got %+v", path)
	}
}

func TestDefaultDescription(t *testing.T) {
	r := NewRegistry()
	r.Register(1, 2, "", addColumn("a", 0))
	r.Register(2, 3, "Add session type", addColumn("b", 0))
	list := r.List()
	if list[0].Description != "Migrate from schema v1 to v2" {
		t.Errorf("got %q", list[0].Description)
	}
	if list[1].Description != "Add session type" {
		t.Errorf("got %q", list[1].Description)
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	r := NewRegistry()
	r.Register(1, 2, "", addColumn("session_type", 1))
	r.Register(2, 3, "", func(t rws.Table) (rws.Table, error) {
		values, _ := t.Column("power_watts")
		for i := range values {
			values[i] *= 2
		}
		return t, nil
	})

	in := sampleTable()
	out, err := r.Apply(in, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Column("session_type"); !ok {
		t.Fatal("first step not applied")
	}
	if power, _ := out.Column("power_watts"); power[0] != 240 {
		t.Fatalf("second step not applied: %v", power)
	}
	if _, ok := in.Column("session_type"); ok {
		t.Fatal("input gained a column")
	}
	if power, _ := in.Column("power_watts"); power[0] != 120 {
		t.Fatalf("input modified: %v", power)
	}
}

func TestApplyFailingStep(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	r.Register(1, 2, "", addColumn("a", 0))
	r.Register(2, 3, "", func(rws.Table) (rws.Table, error) { return rws.Table{}, boom })

	_, err := r.Apply(sampleTable(), 1, 3)
	var ce *ChainError
	if !errors.As(err, &ce) || ce.From != 2 || ce.To != 3 {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not wrapped: %v", err)
	}
}

func TestRegisterRejectsBackwardStep(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic")
		}
	}()
	NewRegistry().Register(2, 1, "", addColumn("a", 0))
}
