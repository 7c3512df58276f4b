package schema

import (
	"testing"
)

func TestInferClassifiesColumnTypes(t *testing.T) {
	headers := []string{"Region", "Product Name", "Sales", "Order Date", "Notes"}
	rows := [][]string{
		{"north", "Widget", "1200.50", "2025-01-03", "called back twice about the invoice"},
		{"south", "Gadget", "980.00", "2025-01-04", "asked for a bulk discount"},
		{"north", "Widget", "1500", "2025-01-05", "repeat customer, ships to the depot"},
		{"east", "Sprocket", "700.25", "2025-01-06", "new account opened by the rep"},
		{"south", "Gadget", "1100.75", "2025-01-07", "waiting on a signed purchase order"},
		{"north", "Widget", "890.10", "2025-01-08", "escalated to the regional manager"},
	}
	ctx, err := Infer("Sales 2025", headers, rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if ctx.TableName != "sales_2025" {
		t.Fatalf("TableName = %q", ctx.TableName)
	}
	want := map[string]Type{
		"region":       TypeCategorical,
		"product_name": TypeCategorical,
		"sales":        TypeNumeric,
		"order_date":   TypeDate,
		"notes":        TypeText,
	}
	for name, wantType := range want {
		col, ok := ctx.Column(name)
		if !ok {
			t.Fatalf("column %q missing", name)
		}
		if col.Type != wantType {
			t.Fatalf("column %q type = %q, want %q", name, col.Type, wantType)
		}
	}
}

func TestInferRecordsScaleAndNullability(t *testing.T) {
	headers := []string{"amount", "score"}
	rows := [][]string{
		{"$1,200.50", "4"},
		{"980.1", ""},
		{"700", "N/A"},
		{"-15.25", "5"},
		{"42.026", "3"},
	}
	ctx, err := Infer("orders", headers, rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	amount, _ := ctx.Column("amount")
	if amount.Type != TypeNumeric {
		t.Fatalf("amount type = %q", amount.Type)
	}
	if amount.Scale != 3 {
		t.Fatalf("amount scale = %d, want 3", amount.Scale)
	}
	if amount.Nullable {
		t.Fatal("amount should not be nullable")
	}
	score, _ := ctx.Column("score")
	if !score.Nullable {
		t.Fatal("score should be nullable")
	}
	if score.Type != TypeNumeric {
		t.Fatalf("score type = %q", score.Type)
	}
	if score.Scale != 0 {
		t.Fatalf("score scale = %d, want 0", score.Scale)
	}
}

func TestInferKeepsSamplesInFirstSeenOrder(t *testing.T) {
	headers := []string{"region"}
	rows := [][]string{
		{"west"}, {"north"}, {"west"}, {"south"}, {"north"}, {"east"},
		{"west"}, {"north"}, {"south"}, {"east"}, {"west"}, {"north"},
	}
	ctx, err := Infer("t", headers, rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	col, _ := ctx.Column("region")
	want := []string{"west", "north", "south", "east"}
	if len(col.SampleValues) != len(want) {
		t.Fatalf("SampleValues = %v", col.SampleValues)
	}
	for i, v := range want {
		if col.SampleValues[i] != v {
			t.Fatalf("SampleValues[%d] = %q, want %q", i, col.SampleValues[i], v)
		}
	}
}

func TestInferDateLayoutDetection(t *testing.T) {
	headers := []string{"shipped"}
	rows := [][]string{
		{"2025/01/03"}, {"2025/01/04"}, {"2025/02/11"}, {"2025/03/09"}, {"2025/03/10"},
	}
	ctx, err := Infer("t", headers, rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	col, _ := ctx.Column("shipped")
	if col.Type != TypeDate {
		t.Fatalf("shipped type = %q", col.Type)
	}
	if col.DateFormat != "2006/01/02" {
		t.Fatalf("DateFormat = %q", col.DateFormat)
	}
}

func TestInferAllNullColumnIsNullableText(t *testing.T) {
	ctx, err := Infer("t", []string{"a", "b"}, [][]string{
		{"x", ""}, {"y", "NULL"}, {"x", "n/a"},
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	col, _ := ctx.Column("b")
	if col.Type != TypeText || !col.Nullable {
		t.Fatalf("b = %+v, want nullable text", col)
	}
}

func TestInferMixedColumnFallsBackToText(t *testing.T) {
	rows := [][]string{
		{"12"}, {"see attached sheet"}, {"9.5"}, {"pending review"}, {"deferred to q3"},
		{"awaiting approval"}, {"flagged by finance"}, {"17"}, {"resubmitted in march"}, {"on hold"},
	}
	ctx, err := Infer("t", []string{"status"}, rows)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	col, _ := ctx.Column("status")
	if col.Type != TypeText {
		t.Fatalf("status type = %q, want text", col.Type)
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		scale int
		ok    bool
	}{
		{"1200.50", 1200.5, 2, true},
		{"$1,200.50", 1200.5, 2, true},
		{"-15.25", -15.25, 2, true},
		{"700", 700, 0, true},
		{"€9.1", 9.1, 1, true},
		{"widget", 0, 0, false},
		{"", 0, 0, false},
		{"$", 0, 0, false},
	}
	for _, tt := range tests {
		got, scale, ok := ParseNumeric(tt.in)
		if ok != tt.ok {
			t.Fatalf("ParseNumeric(%q) ok = %t, want %t", tt.in, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if got != tt.want || scale != tt.scale {
			t.Fatalf("ParseNumeric(%q) = %v scale %d, want %v scale %d", tt.in, got, scale, tt.want, tt.scale)
		}
	}
}
