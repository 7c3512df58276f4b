package translate

import (
	"testing"
)

func TestCompileGroupedRanking(t *testing.T) {
	sc := salesSchema(t)
	in := Intent{
		Operation:      OpTopN,
		TargetColumns:  []string{"sales"},
		Aggregation:    AggSum,
		GroupBy:        []string{"region"},
		OrderDirection: DirectionDesc,
		Limit:          5,
	}
	got, err := Compile(in, sc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := `SELECT "region", sum("sales") AS "sum_sales" FROM "sales" GROUP BY "region" ORDER BY "sum_sales" DESC LIMIT 5`
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestCompileGroupedAggregateOrdersByGroups(t *testing.T) {
	sc := salesSchema(t)
	in := Intent{
		Operation:      OpGroupByAggregate,
		TargetColumns:  []string{"sales"},
		Aggregation:    AggSum,
		GroupBy:        []string{"region", "product"},
		OrderDirection: DirectionNone,
	}
	got, err := Compile(in, sc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := `SELECT "region", "product", sum("sales") AS "sum_sales" FROM "sales" GROUP BY "region", "product" ORDER BY "region", "product"`
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestCompileCountRows(t *testing.T) {
	sc := salesSchema(t)
	in := Intent{
		Operation:      OpAggregate,
		TargetColumns:  []string{"*"},
		Aggregation:    AggCount,
		OrderDirection: DirectionNone,
	}
	got, err := Compile(in, sc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := `SELECT count(*) AS "count_rows" FROM "sales"`
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestCompileFilterSelectsNamedColumns(t *testing.T) {
	sc := salesSchema(t)
	in := Intent{
		Operation:      OpFilter,
		TargetColumns:  sc.Names(),
		Aggregation:    AggNone,
		Filters:        []Predicate{{Column: "satisfaction", Comparator: CmpGreater, Value: 3.0}},
		OrderDirection: DirectionNone,
	}
	got, err := Compile(in, sc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := `SELECT "region", "product", "sales", "satisfaction", "order_date", "notes" FROM "sales" WHERE "satisfaction" > 3`
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestCompileRowRanking(t *testing.T) {
	sc := salesSchema(t)
	in := Intent{
		Operation:      OpTopN,
		TargetColumns:  []string{"sales", "region", "product", "satisfaction", "order_date", "notes"},
		Aggregation:    AggNone,
		OrderDirection: DirectionDesc,
		Limit:          5,
	}
	got, err := Compile(in, sc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := `SELECT "sales", "region", "product", "satisfaction", "order_date", "notes" FROM "sales" ORDER BY "sales" DESC LIMIT 5`
	if got != want {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
}

func TestCompilePredicateLiterals(t *testing.T) {
	sc := salesSchema(t)
	cases := []struct {
		name string
		pred Predicate
		want string
	}{
		{
			name: "float renders without exponent",
			pred: Predicate{Column: "sales", Comparator: CmpGreaterEqual, Value: 100.5},
			want: `"sales" >= 100.5`,
		},
		{
			name: "numeric string coerced for numeric column",
			pred: Predicate{Column: "satisfaction", Comparator: CmpGreater, Value: "3.5"},
			want: `"satisfaction" > 3.5`,
		},
		{
			name: "date stays a quoted literal",
			pred: Predicate{Column: "order_date", Comparator: CmpGreaterEqual, Value: "2025-01-01"},
			want: `"order_date" >= '2025-01-01'`,
		},
		{
			name: "single quotes doubled",
			pred: Predicate{Column: "region", Comparator: CmpEqual, Value: "o'brien"},
			want: `"region" = 'o''brien'`,
		},
		{
			name: "contains escapes wildcards",
			pred: Predicate{Column: "notes", Comparator: CmpContains, Value: "50%_off"},
			want: `"notes" LIKE '%50\%\_off%' ESCAPE '\'`,
		},
	}
	for _, tc := range cases {
		in := Intent{
			Operation:      OpFilter,
			TargetColumns:  []string{"notes"},
			Aggregation:    AggNone,
			Filters:        []Predicate{tc.pred},
			OrderDirection: DirectionNone,
		}
		got, err := Compile(in, sc)
		if err != nil {
			t.Fatalf("%s: Compile() error = %v", tc.name, err)
		}
		want := `SELECT "notes" FROM "sales" WHERE ` + tc.want
		if got != want {
			t.Fatalf("%s: Compile() = %q, want %q", tc.name, got, want)
		}
	}
}

func TestCompileRejectsMalformedIntents(t *testing.T) {
	sc := salesSchema(t)
	cases := []Intent{
		{Operation: "explode", TargetColumns: []string{"sales"}},
		{Operation: OpAggregate, TargetColumns: []string{"sales"}, Aggregation: AggNone, OrderDirection: DirectionNone},
		{Operation: OpTopN, TargetColumns: []string{"sales"}, Aggregation: AggNone, GroupBy: []string{"region"}, OrderDirection: DirectionDesc, Limit: 5},
		{Operation: OpFilter, TargetColumns: []string{"sales"}, Aggregation: AggNone, OrderDirection: DirectionNone},
	}
	for i, in := range cases {
		if _, err := Compile(in, sc); err == nil {
			t.Fatalf("case %d: Compile() accepted malformed intent %+v", i, in)
		}
	}
}
