package mathx

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func Dist(a, b Vec3) float64 {
	d := a.Sub(b)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

func Within(a, b Vec3, radius float64) bool {
	if radius < 0 {
		return false
	}
	return Dist(a, b) <= radius
}

// Key renders a position with one decimal per axis. Zone IDs are derived from it,
// so two raids at the same spot resolve to the same zone.
func (v Vec3) Key() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// HealthPercent returns the health left after dmg as a percentage of max.
func HealthPercent(health, max, dmg float64) float64 {
	if max <= 0 {
		return 0
	}
	return (health - dmg) * 100 / max
}

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
