// Package physics models the relationship between rider power output and
// speed for a road bike on a given grade.
package physics

import "math"

// Physical constants.
const (
	Gravity             = 9.81  // m/s^2
	AirDensity          = 1.225 // kg/m^3 at sea level, 15 C
	RollingResistance   = 0.004 // road bike on smooth asphalt
	DragCoefficientArea = 0.3   // m^2, CdA for road position
)

const (
	maxIterations  = 20
	powerTolerance = 0.1  // watts
	derivativeMin  = 0.01 // guard against division by a near-zero slope
	initialSpeedMS = 5.0
	minSpeedMS     = 0.1
	maxSpeedMS     = 30.0
)

// SpeedFromPower solves for the speed that satisfies power = force x speed
// using Newton's method. The grade term uses the small-angle approximation
// sin(theta) ~ grade/100. On descents total force can go negative (gravity
// assists); the per-iteration clamp keeps the solver from oscillating.
// Always returns a finite non-negative speed in m/s; zero or negative power
// returns exactly 0.
func SpeedFromPower(powerW, gradePct, totalMassKg float64) float64 {
	if powerW <= 0 {
		return 0.0
	}

	grade := gradePct / 100.0
	speed := initialSpeedMS

	for i := 0; i < maxIterations; i++ {
		forceGravity := totalMassKg * Gravity * grade
		forceRolling := RollingResistance * totalMassKg * Gravity
		forceAir := 0.5 * DragCoefficientArea * AirDensity * speed * speed
		totalForce := forceGravity + forceRolling + forceAir

		powerCalculated := totalForce * speed
		powerError := powerCalculated - powerW
		if math.Abs(powerError) < powerTolerance {
			break
		}

		// dP/dv = F + v * dF/dv, with dF/dv = rho * CdA * v.
		dPowerDSpeed := totalForce + speed*(AirDensity*DragCoefficientArea*speed)
		if math.Abs(dPowerDSpeed) > derivativeMin {
			speed -= powerError / dPowerDSpeed
		}

		speed = math.Max(minSpeedMS, math.Min(speed, maxSpeedMS))
	}

	return math.Max(0.0, speed)
}

// SpeedFromPowerKmh is SpeedFromPower converted to km/h.
func SpeedFromPowerKmh(powerW, gradePct, totalMassKg float64) float64 {
	return SpeedFromPower(powerW, gradePct, totalMassKg) * 3.6
}
