// Package ui implements the kiosk dashboard: a sidebar with connection and
// detector-state indicators, a GDI gauge and sparkline, a per-test result
// table for the most recent analyser tick, and a scrollable EVENT log.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gioui.org/f32"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"rngkiosk/cmd/rngkiosk-gui/internal/theme"
	"rngkiosk/internal/analysis"
	"rngkiosk/internal/store"
)

// State is everything the dashboard needs to render one frame. The poll
// loop in main builds a fresh State every tick and hands it to Update.
type State struct {
	Snapshot     analysis.AnalysisSnapshot
	Connected    bool
	ConnectError string
	History      []analysis.MetricRecord
	Events       []store.EventRecord
}

// Dashboard is the main UI component.
type Dashboard struct {
	theme *theme.Theme

	mu    sync.Mutex
	state State

	testList  widget.List
	eventList widget.List
}

// NewDashboard creates a new dashboard.
func NewDashboard(t *theme.Theme) *Dashboard {
	d := &Dashboard{theme: t}
	d.testList.List.Axis = layout.Vertical
	d.eventList.List.Axis = layout.Vertical
	return d
}

// Update replaces the dashboard's state. Safe to call from the poll
// goroutine concurrently with Layout running on the UI goroutine.
func (d *Dashboard) Update(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dashboard) snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Layout renders the dashboard.
func (d *Dashboard) Layout(gtx layout.Context) layout.Dimensions {
	paint.Fill(gtx.Ops, d.theme.Palette.Background)
	state := d.snapshot()

	return layout.Flex{
		Axis: layout.Horizontal,
	}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			gtx.Constraints.Min.X = gtx.Dp(240)
			gtx.Constraints.Max.X = gtx.Dp(240)
			return d.layoutSidebar(gtx, state)
		}),

		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			size := image.Pt(gtx.Dp(1), gtx.Constraints.Max.Y)
			rect := clip.Rect{Max: size}.Op()
			paint.FillShape(gtx.Ops, d.theme.Palette.Border, rect)
			return layout.Dimensions{Size: size}
		}),

		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return d.layoutContent(gtx, state)
		}),
	)
}

func (d *Dashboard) layoutSidebar(gtx layout.Context, state State) layout.Dimensions {
	return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				title := material.H6(d.theme.Theme, "RNG KIOSK")
				title.Color = d.theme.Palette.Primary
				title.TextSize = d.theme.Config.FontTitle
				return title.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(20)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return d.layoutConnectionStatus(gtx, state)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return d.layoutStateBadge(gtx, state)
			}),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return layout.Dimensions{Size: gtx.Constraints.Max}
			}),
		)
	})
}

func (d *Dashboard) layoutConnectionStatus(gtx layout.Context, state State) layout.Dimensions {
	label := "DISCONNECTED"
	dotColor := d.theme.Palette.Error
	if state.Connected {
		label = "LIVE"
		dotColor = d.theme.Palette.Success
	}

	return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			d := gtx.Dp(8)
			rect := clip.UniformRRect(image.Rect(0, 0, d, d), d/2).Op(gtx.Ops)
			paint.FillShape(gtx.Ops, dotColor, rect)
			return layout.Dimensions{Size: image.Pt(d, d)}
		}),
		layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			l := material.Body2(d.theme.Theme, label)
			l.Color = d.theme.Palette.TextMuted
			return l.Layout(gtx)
		}),
	)
}

func (d *Dashboard) layoutStateBadge(gtx layout.Context, state State) layout.Dimensions {
	badgeColor := d.theme.Palette.TextMuted
	label := "NO DATA"
	if state.Connected {
		label = string(state.Snapshot.State)
		switch state.Snapshot.State {
		case analysis.StateCalm:
			badgeColor = d.theme.Palette.Success
		case analysis.StateEvent:
			badgeColor = d.theme.Palette.Error
		case analysis.StateRecover:
			badgeColor = d.theme.Palette.Warning
		}
	}

	return layout.Stack{}.Layout(gtx,
		layout.Expanded(func(gtx layout.Context) layout.Dimensions {
			rect := clip.UniformRRect(image.Rect(0, 0, gtx.Constraints.Max.X, gtx.Dp(36)), int(gtx.Dp(6))).Op(gtx.Ops)
			paint.FillShape(gtx.Ops, withAlpha(badgeColor, 0x33), rect)
			return layout.Dimensions{Size: image.Pt(gtx.Constraints.Max.X, gtx.Dp(36))}
		}),
		layout.Stacked(func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				l := material.Body1(d.theme.Theme, label)
				l.Color = badgeColor
				return l.Layout(gtx)
			})
		}),
	)
}

func (d *Dashboard) layoutContent(gtx layout.Context, state State) layout.Dimensions {
	return layout.UniformInset(d.theme.Config.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				h := material.H5(d.theme.Theme, "Entropy Monitor")
				h.Color = d.theme.Palette.Text
				return h.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return d.layoutGaugeRow(gtx, state)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Min.Y = gtx.Dp(140)
				gtx.Constraints.Max.Y = gtx.Dp(140)
				return d.layoutSparkline(gtx, state)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(16)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
					layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
						return d.layoutTestTable(gtx, state)
					}),
					layout.Rigid(layout.Spacer{Width: unit.Dp(16)}.Layout),
					layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
						return d.layoutEventList(gtx, state)
					}),
				)
			}),
		)
	})
}

func (d *Dashboard) layoutGaugeRow(gtx layout.Context, state State) layout.Dimensions {
	gdi := state.Snapshot.Stats.GDI
	fraction := gdi / 6.0
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			l := material.Body1(d.theme.Theme, "GDI")
			l.Color = d.theme.Palette.TextMuted
			return l.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			bar := material.ProgressBar(d.theme.Theme, float32(fraction))
			bar.Color = gaugeColor(d.theme, fraction)
			return bar.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			l := material.H6(d.theme.Theme, fmt.Sprintf("%.2f", gdi))
			l.Color = d.theme.Palette.Text
			return l.Layout(gtx)
		}),
	)
}

func gaugeColor(t *theme.Theme, fraction float64) color.NRGBA {
	switch {
	case fraction >= 0.8:
		return t.Palette.Error
	case fraction >= 0.5:
		return t.Palette.Warning
	default:
		return t.Palette.Success
	}
}

// layoutSparkline draws the recent GDI history as a connected line over a
// fixed-height panel, scaled to the panel's own min/max so small
// fluctuations stay visible even when GDI never approaches the alert
// threshold.
func (d *Dashboard) layoutSparkline(gtx layout.Context, state State) layout.Dimensions {
	size := gtx.Constraints.Max
	rect := clip.UniformRRect(image.Rect(0, 0, size.X, size.Y), int(gtx.Dp(d.theme.Config.CornerRadius))).Op(gtx.Ops)
	paint.FillShape(gtx.Ops, d.theme.Palette.Surface, rect)

	history := state.History
	if len(history) < 2 {
		return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			l := material.Body2(d.theme.Theme, "waiting for history...")
			l.Color = d.theme.Palette.TextMuted
			return l.Layout(gtx)
		})
	}

	minGDI, maxGDI := history[0].GDI, history[0].GDI
	for _, r := range history {
		if r.GDI < minGDI {
			minGDI = r.GDI
		}
		if r.GDI > maxGDI {
			maxGDI = r.GDI
		}
	}
	span := maxGDI - minGDI
	if span == 0 {
		span = 1
	}

	const inset = 8
	plotW := float32(size.X - 2*inset)
	plotH := float32(size.Y - 2*inset)

	var path clip.Path
	path.Begin(gtx.Ops)
	for i, r := range history {
		x := float32(inset) + plotW*float32(i)/float32(len(history)-1)
		y := float32(inset) + plotH*(1-float32((r.GDI-minGDI)/span))
		pt := f32.Pt(x, y)
		if i == 0 {
			path.MoveTo(pt)
		} else {
			path.LineTo(pt)
		}
	}
	spec := path.End()
	paint.FillShape(gtx.Ops, d.theme.Palette.Primary, clip.Stroke{Path: spec, Width: 2}.Op())

	return layout.Dimensions{Size: size}
}

func (d *Dashboard) layoutTestTable(gtx layout.Context, state State) layout.Dimensions {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			h := material.Body1(d.theme.Theme, "Test Battery")
			h.Color = d.theme.Palette.Text
			return h.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			rows := flattenResults(state.Snapshot.Stats.Summaries)
			list := material.List(d.theme.Theme, &d.testList)
			return list.Layout(gtx, len(rows), func(gtx layout.Context, i int) layout.Dimensions {
				return d.layoutTestRow(gtx, rows[i], state.Snapshot.Stats.QValues[rows[i].Key()])
			})
		}),
	)
}

func flattenResults(summaries []analysis.WindowSummary) []analysis.TestResult {
	var rows []analysis.TestResult
	for _, s := range summaries {
		rows = append(rows, s.Results...)
	}
	return rows
}

func (d *Dashboard) layoutTestRow(gtx layout.Context, r analysis.TestResult, q float64) layout.Dimensions {
	textColor := d.theme.Palette.Text
	if q < 0.01 {
		textColor = d.theme.Palette.Error
	} else if q < 0.05 {
		textColor = d.theme.Palette.Warning
	}

	return layout.UniformInset(unit.Dp(4)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				l := material.Body2(d.theme.Theme, fmt.Sprintf("%s@%d", r.Name, r.Window))
				l.Color = textColor
				return l.Layout(gtx)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				l := material.Body2(d.theme.Theme, fmt.Sprintf("z=%.2f q=%.4f", r.ZScore, q))
				l.Color = textColor
				return l.Layout(gtx)
			}),
		)
	})
}

func (d *Dashboard) layoutEventList(gtx layout.Context, state State) layout.Dimensions {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			h := material.Body1(d.theme.Theme, "Events")
			h.Color = d.theme.Palette.Text
			return h.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			if len(state.Events) == 0 {
				return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					l := material.Body2(d.theme.Theme, "no events recorded")
					l.Color = d.theme.Palette.TextMuted
					return l.Layout(gtx)
				})
			}
			list := material.List(d.theme.Theme, &d.eventList)
			return list.Layout(gtx, len(state.Events), func(gtx layout.Context, i int) layout.Dimensions {
				return d.layoutEventRow(gtx, state.Events[i])
			})
		}),
	)
}

func (d *Dashboard) layoutEventRow(gtx layout.Context, e store.EventRecord) layout.Dimensions {
	ts := time.UnixMilli(e.TimestampMs).Format("15:04:05")
	return layout.UniformInset(unit.Dp(4)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				l := material.Body2(d.theme.Theme, fmt.Sprintf("%s  %s", ts, e.State))
				l.Color = d.theme.Palette.Error
				return l.Layout(gtx)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				l := material.Caption(d.theme.Theme, fmt.Sprintf("%s (gdi=%.2f)", e.Reason, e.GDI))
				l.Color = d.theme.Palette.TextMuted
				return l.Layout(gtx)
			}),
		)
	})
}

func withAlpha(c color.NRGBA, a uint8) color.NRGBA {
	c.A = a
	return c
}
