package ui

import (
	"fmt"
	"strings"

	"github.com/scottharvey/crankTUI/internal/ride"
	"github.com/scottharvey/crankTUI/internal/route"
)

// renderMetrics formats the live metrics panel.
func renderMetrics(m ride.Metrics) string {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [yellow]Power:[white]    %6.0f W\n", m.PowerW)
	fmt.Fprintf(&b, "  [yellow]Cadence:[white]  %6.0f rpm\n", m.CadenceRPM)
	fmt.Fprintf(&b, "  [yellow]Speed:[white]    %6.1f km/h\n", m.SpeedKmh)
	fmt.Fprintf(&b, "  [yellow]Grade:[white]    %+6.1f %%\n", m.GradePct)
	fmt.Fprintf(&b, "  [yellow]Distance:[white] %6.2f km\n", m.DistanceM/1000)
	fmt.Fprintf(&b, "  [yellow]Time:[white]     %8s\n", formatElapsed(m.ElapsedS))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [gray]Mode:[white] %s", m.Mode)
	if m.Mode == ride.ModeSim {
		fmt.Fprintf(&b, "   [gray]Scale:[white] %.1fx", m.ResistanceScale)
	}
	if m.IsRecording {
		b.WriteString("   [red]REC[white]")
	}
	b.WriteString("\n")
	return b.String()
}

// formatElapsed renders seconds as h:mm:ss, dropping the hour when zero.
func formatElapsed(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// renderElevation draws the route profile as a column chart with the
// rider's position highlighted. Width and height are in character cells.
func renderElevation(r *route.Route, width, height int, positionM float64) string {
	if r == nil || len(r.Points) < 2 || width < 2 || height < 1 {
		return ""
	}

	points := r.Resample(width)
	minE, maxE := route.ElevationRange(points)
	span := maxE - minE
	if span <= 0 {
		span = 1
	}

	// Column heights in cells, at least one so a flat route still draws.
	heights := make([]int, len(points))
	for i, p := range points {
		h := int((p.ElevationM - minE) / span * float64(height-1))
		heights[i] = h + 1
	}

	riderCol := 0
	if total := r.TotalDistanceM(); total > 0 {
		riderCol = int(positionM / total * float64(len(points)-1))
		if riderCol >= len(points) {
			riderCol = len(points) - 1
		}
		if riderCol < 0 {
			riderCol = 0
		}
	}

	var b strings.Builder
	for row := height; row >= 1; row-- {
		for col := 0; col < len(heights); col++ {
			filled := heights[col] >= row
			switch {
			case filled && col == riderCol:
				b.WriteString("[red]█[white]")
			case filled:
				b.WriteString("█")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "[gray]%.0fm[white] %s [gray]%.0fm[white]",
		minE, strings.Repeat("─", max(0, width-12)), maxE)
	return b.String()
}

// formatDevice renders one scan result line for the device list.
func formatDevice(name, address string, rssi int16) string {
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf("%s (%s) [RSSI: %d]", name, address, rssi)
}
