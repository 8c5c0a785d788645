package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/plot"
)

const maxEnvelopeBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		// Report violations under the wire name, not the Go field name.
		vld.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// queryEnvelope is the common filter block of §6.2 requests. Ids are
// pointers so "absent" and "zero" stay distinguishable; a zero id means the
// same as absent (no filter).
type queryEnvelope struct {
	CustomerID   *int64 `json:"customer_id" validate:"omitempty,min=0,max=4294967295"`
	MonitorID    *int64 `json:"monitor_id" validate:"omitempty,min=0,max=4294967295"`
	HostSchemeID *int64 `json:"host_scheme_id" validate:"omitempty,min=0,max=4294967295"`
	RegionID     *int64 `json:"region_id" validate:"omitempty,min=0,max=65535"`
	ServerID     *int64 `json:"server_id" validate:"omitempty,min=0,max=65535"`
	Start        *int64 `json:"start_timestamp"`
	End          *int64 `json:"end_timestamp"`
}

func (e queryEnvelope) toQuery() domain.LatencyQuery {
	var q domain.LatencyQuery
	if e.CustomerID != nil {
		q.Customer = domain.CustomerID(*e.CustomerID)
	}
	if e.MonitorID != nil {
		q.Monitor = domain.MonitorID(*e.MonitorID)
	}
	if e.HostSchemeID != nil {
		q.HostScheme = domain.HostSchemeID(*e.HostSchemeID)
	}
	if e.RegionID != nil {
		q.Region = domain.RegionID(*e.RegionID)
	}
	if e.ServerID != nil {
		q.Server = domain.ServerID(*e.ServerID)
	}
	if e.Start != nil {
		q.Start = domain.ToZoran(*e.Start)
	}
	if e.End != nil {
		q.End = domain.ToZoran(*e.End)
	}
	return q
}

// purgeEnvelope names the customers whose latency data must go.
type purgeEnvelope struct {
	CustomerIDs []int64 `json:"customer_ids" validate:"required,min=1,dive,min=1,max=4294967295"`
}

func (e purgeEnvelope) customers() []domain.CustomerID {
	ids := make([]domain.CustomerID, 0, len(e.CustomerIDs))
	for _, id := range e.CustomerIDs {
		ids = append(ids, domain.CustomerID(id))
	}
	return ids
}

// plotEnvelope extends the filter block with chart parameters. Width and
// height are clamped by the renderer rather than rejected here.
type plotEnvelope struct {
	queryEnvelope
	PlotType      string   `json:"plot_type" validate:"omitempty,oneof=history histogram"`
	Title         string   `json:"title"`
	XAxisLabel    string   `json:"x_axis_label"`
	YAxisLabel    string   `json:"y_axis_label"`
	DateFormat    string   `json:"date_format"`
	TitleFont     string   `json:"title_font"`
	AxisTitleFont string   `json:"axis_title_font"`
	AxisLabelFont string   `json:"axis_label_font"`
	MinLatency    *float64 `json:"minimum_latency" validate:"omitempty,gte=0"`
	MaxLatency    *float64 `json:"maximum_latency" validate:"omitempty,gte=0"`
	LogScale      bool     `json:"log_scale"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	Format        string   `json:"format" validate:"omitempty,oneof=png jpeg jpg"`
}

// toOptions builds render options. Font strings are validated here because
// their grammar lives in the plot package.
func (e plotEnvelope) toOptions() (plot.Options, error) {
	opts := plot.Options{
		Title:      e.Title,
		XLabel:     e.XAxisLabel,
		YLabel:     e.YAxisLabel,
		DateFormat: e.DateFormat,
		LogScale:   e.LogScale,
		Width:      e.Width,
		Height:     e.Height,
		Format:     e.Format,
	}
	if e.MinLatency != nil {
		opts.MinLatency = *e.MinLatency
	}
	if e.MaxLatency != nil {
		opts.MaxLatency = *e.MaxLatency
	}
	var err error
	if e.TitleFont != "" {
		if opts.TitleFont, err = plot.ParseFont(e.TitleFont); err != nil {
			return opts, fmt.Errorf("bad title_font: %w", err)
		}
	}
	if e.AxisTitleFont != "" {
		if opts.AxisTitleFont, err = plot.ParseFont(e.AxisTitleFont); err != nil {
			return opts, fmt.Errorf("bad axis_title_font: %w", err)
		}
	}
	if e.AxisLabelFont != "" {
		if opts.AxisLabelFont, err = plot.ParseFont(e.AxisLabelFont); err != nil {
			return opts, fmt.Errorf("bad axis_label_font: %w", err)
		}
	}
	return opts, nil
}

func (e plotEnvelope) kind() plot.Kind {
	if e.PlotType == "histogram" {
		return plot.Histogram
	}
	return plot.History
}

// decodeEnvelope parses the request body into dst. Anything that is not
// the expected JSON shape is an envelope violation; the caller answers
// with a bare 400.
func decodeEnvelope(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

// checkEnvelope runs validator tags over a decoded envelope and renders the
// first violation as a human-readable reason.
func checkEnvelope(v any) (string, bool) {
	err := getValidator().Struct(v)
	if err == nil {
		return "", true
	}
	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		fe := ve[0]
		field := fe.Field()
		// Violations inside a list carry the element index; report the
		// plain wire name instead.
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		switch {
		case fe.Tag() == "oneof":
			return field + " invalid", false
		case fe.Tag() == "required":
			return field + " required", false
		case fe.Tag() == "min" && fe.Kind() == reflect.Slice:
			// An empty list and an absent one mean the same thing.
			return field + " required", false
		default:
			return field + " out of range", false
		}
	}
	return "invalid request", false
}
