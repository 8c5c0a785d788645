package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// Pixel bounds for rendered images.
const (
	MinImageDim = 100
	MaxImageDim = 2048

	defaultWidth  = 800
	defaultHeight = 600
)

const (
	microsPerSecond = 1e6
	histogramBins   = 16
	// logFloor is 1us in seconds, the resolution of stored latencies. Log
	// axes cannot show zero, so zero readings are pinned here.
	logFloor = 1e-6
)

// DateFormatDOW switches the history x-axis to day-of-week 1-7 of the first
// sample's Monday-aligned week. Samples outside that week are clipped.
const DateFormatDOW = "dow"

// Options carries the caller-facing chart controls.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	// DateFormat is an strftime-style layout for history x tick labels, or
	// DateFormatDOW.
	DateFormat    string
	TitleFont     Font
	AxisTitleFont Font
	AxisLabelFont Font
	// MinLatency and MaxLatency pin the latency axis, in seconds. Zero
	// leaves the bound to the data.
	MinLatency float64
	MaxLatency float64
	LogScale   bool
	// Width and Height are pixels, clamped to [MinImageDim, MaxImageDim].
	Width  int
	Height int
	// Format selects the encoding: png (default) or jpeg.
	Format string
}

func renderHistory(raw []domain.Sample, aggregated []domain.AggregatedSample, opts Options) ([]byte, error) {
	p := plot.New()
	applyChrome(p, opts)

	dow := opts.DateFormat == DateFormatDOW
	var clip timeWindow
	if dow {
		if first, ok := firstTimestamp(raw, aggregated); ok {
			clip = mondayWeek(first)
		}
	}
	xv := func(ts domain.ZoranTime) (float64, bool) {
		if dow {
			return dowX(ts, clip)
		}
		return float64(ts.Unix()), true
	}
	yv := func(micros float64) float64 {
		v := micros / microsPerSecond
		if opts.LogScale && v < logFloor {
			v = logFloor
		}
		return v
	}

	var (
		means   = make(plotter.XYs, 0, len(aggregated))
		mins    = make(plotter.XYs, 0, len(aggregated))
		maxs    = make(plotter.XYs, 0, len(aggregated))
		lower   = make(plotter.XYs, 0, len(aggregated))
		upper   = make(plotter.XYs, 0, len(aggregated))
		horizon domain.ZoranTime
	)
	for _, row := range aggregated {
		x, ok := xv(windowMid(row))
		if !ok {
			continue
		}
		mean := row.Mean
		sigma := math.Sqrt(row.Variance)
		means = append(means, plotter.XY{X: x, Y: yv(mean)})
		mins = append(mins, plotter.XY{X: x, Y: yv(float64(row.Min))})
		maxs = append(maxs, plotter.XY{X: x, Y: yv(float64(row.Max))})
		lower = append(lower, plotter.XY{X: x, Y: yv(mean - sigma)})
		upper = append(upper, plotter.XY{X: x, Y: yv(mean + sigma)})
		if row.End > horizon {
			horizon = row.End
		}
	}

	points := make(plotter.XYs, 0, len(raw))
	for _, s := range raw {
		if s.Timestamp < horizon {
			continue
		}
		x, ok := xv(s.Timestamp)
		if !ok {
			continue
		}
		points = append(points, plotter.XY{X: x, Y: yv(float64(s.LatencyMicros))})
	}

	if len(lower) > 1 {
		band := make(plotter.XYs, 0, 2*len(lower))
		band = append(band, lower...)
		for i := len(upper) - 1; i >= 0; i-- {
			band = append(band, upper[i])
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return nil, fmt.Errorf("op=plot.history: band: %w", err)
		}
		poly.Color = color.NRGBA{R: 100, G: 140, B: 220, A: 60}
		poly.LineStyle.Color = color.NRGBA{}
		p.Add(poly)
	}
	if len(means) > 0 {
		meanLine, err := plotter.NewLine(means)
		if err != nil {
			return nil, fmt.Errorf("op=plot.history: mean: %w", err)
		}
		meanLine.Color = plotutil.Color(0)
		meanLine.Width = vg.Points(1.5)
		minLine, err := plotter.NewLine(mins)
		if err != nil {
			return nil, fmt.Errorf("op=plot.history: min: %w", err)
		}
		minLine.Color = plotutil.Color(2)
		minLine.Dashes = plotutil.Dashes(1)
		maxLine, err := plotter.NewLine(maxs)
		if err != nil {
			return nil, fmt.Errorf("op=plot.history: max: %w", err)
		}
		maxLine.Color = plotutil.Color(3)
		maxLine.Dashes = plotutil.Dashes(1)
		p.Add(meanLine, minLine, maxLine)
		p.Legend.Add("mean", meanLine)
		p.Legend.Add("min", minLine)
		p.Legend.Add("max", maxLine)
		p.Legend.Top = true
	}
	if len(points) > 0 {
		scatter, err := plotter.NewScatter(points)
		if err != nil {
			return nil, fmt.Errorf("op=plot.history: points: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.GlyphStyle.Color = plotutil.Color(1)
		p.Add(scatter)
	}

	if dow {
		p.X.Min, p.X.Max = 1, 8
		p.X.Tick.Marker = dowTicks()
	} else {
		marker := plot.TimeTicks{Time: plot.UnixTimeIn(time.UTC)}
		if opts.DateFormat != "" {
			marker.Format = timeLayout(opts.DateFormat)
		}
		p.X.Tick.Marker = marker
	}

	lo, hi, ok := latencyBounds(raw, aggregated)
	configureLatencyAxis(&p.Y, lo, hi, ok, opts)

	return encode(p, opts)
}

func renderHistogram(raw []domain.Sample, aggregated []domain.AggregatedSample, opts Options) ([]byte, error) {
	p := plot.New()
	applyChrome(p, opts)

	// Aggregated windows contribute their representative raw observation, so
	// the distribution still covers spans that were rolled up.
	vals := make(plotter.Values, 0, len(raw)+len(aggregated))
	for _, s := range raw {
		vals = append(vals, float64(s.LatencyMicros)/microsPerSecond)
	}
	for _, row := range aggregated {
		vals = append(vals, float64(row.LatencyMicros)/microsPerSecond)
	}
	if opts.LogScale {
		for i, v := range vals {
			if v < logFloor {
				vals[i] = logFloor
			}
		}
	}

	if len(vals) > 0 {
		h, err := plotter.NewHist(vals, histogramBins)
		if err != nil {
			return nil, fmt.Errorf("op=plot.histogram: %w", err)
		}
		h.FillColor = plotutil.Color(2)
		h.LineStyle.Width = vg.Points(0.5)
		p.Add(h)
	}

	lo, hi, ok := latencyBounds(raw, aggregated)
	configureLatencyAxis(&p.X, lo, hi, ok, opts)

	return encode(p, opts)
}

// configureLatencyAxis applies the caller's bounds and the rounding rules to
// the latency axis: the y axis of a history chart, the x axis of a
// histogram. Call after all plotters are added so explicit bounds win over
// data ranges.
func configureLatencyAxis(ax *plot.Axis, lo, hi float64, hasData bool, opts Options) {
	if opts.MinLatency > 0 {
		lo, hasData = opts.MinLatency, true
	}
	if opts.MaxLatency > 0 {
		hi, hasData = opts.MaxLatency, true
	}
	if opts.LogScale {
		ax.Scale = plot.LogScale{}
		ax.Tick.Marker = plot.LogTicks{Prec: -1}
		if !hasData {
			lo, hi = logFloor, 1
		}
		ax.Min, ax.Max = logRange(lo, hi)
		return
	}
	if !hasData {
		return
	}
	r := niceRange(lo, hi)
	ax.Min, ax.Max = r.Min, r.Max
	ax.Tick.Marker = linearTicks(r)
}

func linearTicks(r axisRange) plot.ConstantTicks {
	prec := 0
	if e := math.Floor(math.Log10(r.Step)); e < 0 {
		prec = int(-e)
	}
	ticks := make(plot.ConstantTicks, 0, r.intervals()+1)
	for _, v := range r.ticks() {
		ticks = append(ticks, plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', prec, 64)})
	}
	return ticks
}

func dowTicks() plot.ConstantTicks {
	names := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	ticks := make(plot.ConstantTicks, 0, len(names))
	for i, name := range names {
		ticks = append(ticks, plot.Tick{Value: float64(i + 1), Label: name})
	}
	return ticks
}

// latencyBounds is the data extent of the latency axis, in seconds.
func latencyBounds(raw []domain.Sample, aggregated []domain.AggregatedSample) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range raw {
		v := float64(s.LatencyMicros) / microsPerSecond
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, row := range aggregated {
		lo = math.Min(lo, float64(row.Min)/microsPerSecond)
		hi = math.Max(hi, float64(row.Max)/microsPerSecond)
	}
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

func applyChrome(p *plot.Plot, opts Options) {
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.Title.TextStyle.Font = opts.TitleFont.apply(p.Title.TextStyle.Font)
	p.X.Label.TextStyle.Font = opts.AxisTitleFont.apply(p.X.Label.TextStyle.Font)
	p.Y.Label.TextStyle.Font = opts.AxisTitleFont.apply(p.Y.Label.TextStyle.Font)
	p.X.Tick.Label.Font = opts.AxisLabelFont.apply(p.X.Tick.Label.Font)
	p.Y.Tick.Label.Font = opts.AxisLabelFont.apply(p.Y.Tick.Label.Font)
	p.Add(plotter.NewGrid())
}

func encode(p *plot.Plot, opts Options) ([]byte, error) {
	w := clampDim(opts.Width, defaultWidth)
	h := clampDim(opts.Height, defaultHeight)
	// DPI 72 makes one vg point one pixel, so the canvas is exactly w by h.
	c := vgimg.NewWith(vgimg.UseDPI(72), vgimg.UseWH(vg.Length(w), vg.Length(h)))
	p.Draw(draw.New(c))

	var buf bytes.Buffer
	switch strings.ToLower(opts.Format) {
	case "", "png":
		if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("op=plot.encode: png: %w", err)
		}
	case "jpeg", "jpg":
		if _, err := (vgimg.JpegCanvas{Canvas: c}).WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("op=plot.encode: jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("op=plot.encode: unsupported format %q: %w", opts.Format, domain.ErrInvalidValue)
	}
	return buf.Bytes(), nil
}

func clampDim(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < MinImageDim:
		return MinImageDim
	case v > MaxImageDim:
		return MaxImageDim
	default:
		return v
	}
}

// timeWindow is a half-open [start, end) wall-clock span.
type timeWindow struct {
	start, end time.Time
}

func (w timeWindow) contains(t time.Time) bool {
	return !w.start.IsZero() && !t.Before(w.start) && t.Before(w.end)
}

// mondayWeek is the Monday-00:00-aligned UTC week holding ts.
func mondayWeek(ts domain.ZoranTime) timeWindow {
	t := ts.Time()
	back := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -back)
	return timeWindow{start: start, end: start.AddDate(0, 0, 7)}
}

// dowX maps ts into day-of-week coordinates: 1.0 is Monday 00:00 and each
// day is one unit wide. Samples outside the window report false.
func dowX(ts domain.ZoranTime, w timeWindow) (float64, bool) {
	t := ts.Time()
	if !w.contains(t) {
		return 0, false
	}
	return 1 + t.Sub(w.start).Seconds()/86400, true
}

func windowMid(row domain.AggregatedSample) domain.ZoranTime {
	return row.Start + (row.End-row.Start)/2
}

// firstTimestamp is the earliest plotted x position across both inputs.
// Both slices arrive in ascending time order.
func firstTimestamp(raw []domain.Sample, aggregated []domain.AggregatedSample) (domain.ZoranTime, bool) {
	switch {
	case len(aggregated) > 0 && len(raw) > 0:
		mid := windowMid(aggregated[0])
		if raw[0].Timestamp < mid {
			return raw[0].Timestamp, true
		}
		return mid, true
	case len(aggregated) > 0:
		return windowMid(aggregated[0]), true
	case len(raw) > 0:
		return raw[0].Timestamp, true
	default:
		return 0, false
	}
}
