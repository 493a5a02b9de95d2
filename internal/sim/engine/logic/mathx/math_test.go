package mathx

import "testing"

func TestDistAndWithin(t *testing.T) {
	a := Vec3{X: 0, Y: 0, Z: 0}
	b := Vec3{X: 3, Y: 4, Z: 0}
	if got := Dist(a, b); got != 5 {
		t.Fatalf("dist: got %v want 5", got)
	}
	if !Within(a, b, 5) {
		t.Fatalf("expected b within radius 5")
	}
	if Within(a, b, 4.99) {
		t.Fatalf("expected b outside radius 4.99")
	}
	if Within(a, a, -1) {
		t.Fatalf("negative radius must never match")
	}
}

func TestKeyIsStable(t *testing.T) {
	v := Vec3{X: 10, Y: 2.25, Z: -7}
	if got := v.Key(); got != "(10.0, 2.2, -7.0)" && got != "(10.0, 2.3, -7.0)" {
		t.Fatalf("unexpected key %q", got)
	}
	if v.Key() != (Vec3{X: 10, Y: 2.25, Z: -7}).Key() {
		t.Fatalf("key must be deterministic")
	}
}

func TestHealthPercent(t *testing.T) {
	if got := HealthPercent(100, 100, 1); got != 99 {
		t.Fatalf("got %v want 99", got)
	}
	if got := HealthPercent(50, 0, 1); got != 0 {
		t.Fatalf("zero max health: got %v want 0", got)
	}
	if got := HealthPercent(100, 200, 0); got != 50 {
		t.Fatalf("got %v want 50", got)
	}
}
