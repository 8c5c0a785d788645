package plot

import (
	"fmt"
	"strconv"
	"strings"

	xfont "golang.org/x/image/font"
	gfont "gonum.org/v1/plot/font"
	"gonum.org/v1/plot/vg"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// Weight names accepted in font specs.
const (
	WeightNormal = "normal"
	WeightLight  = "light"
	WeightBold   = "bold"
)

// Font size bounds in points.
const (
	minFontSize = 6
	maxFontSize = 32
)

// Font is one parsed "family, size[, weight]" request field. The zero value
// means "not requested" and leaves chart defaults alone.
type Font struct {
	Family string
	Size   float64
	Weight string
}

// ParseFont parses "family, size[, weight]". Weight defaults to normal.
func ParseFont(s string) (Font, error) {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return Font{}, fmt.Errorf("font %q: want \"family, size[, weight]\": %w", s, domain.ErrInvalidValue)
	}
	size, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Font{}, fmt.Errorf("font %q: bad size: %w", s, domain.ErrInvalidValue)
	}
	if size < minFontSize || size > maxFontSize {
		return Font{}, fmt.Errorf("font %q: size outside [%d, %d]: %w", s, minFontSize, maxFontSize, domain.ErrInvalidValue)
	}
	f := Font{Family: parts[0], Size: size, Weight: WeightNormal}
	if len(parts) == 3 {
		switch parts[2] {
		case WeightNormal, WeightLight, WeightBold:
			f.Weight = parts[2]
		default:
			return Font{}, fmt.Errorf("font %q: unknown weight %q: %w", s, parts[2], domain.ErrInvalidValue)
		}
	}
	return f, nil
}

// apply overlays the parsed spec on a base style. Charts render with the
// bundled Liberation faces, so the requested family picks a variant rather
// than an arbitrary system font.
func (f Font) apply(base gfont.Font) gfont.Font {
	out := base
	if f.Size > 0 {
		out.Size = vg.Points(f.Size)
	}
	if f.Family != "" {
		out.Variant = variantFor(f.Family)
	}
	switch f.Weight {
	case WeightLight:
		out.Weight = xfont.WeightLight
	case WeightBold:
		out.Weight = xfont.WeightBold
	case WeightNormal:
		out.Weight = xfont.WeightNormal
	}
	return out
}

func variantFor(family string) gfont.Variant {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "mono") || strings.Contains(f, "courier"):
		return "Mono"
	case strings.Contains(f, "sans") || strings.Contains(f, "arial") || strings.Contains(f, "helvetica"):
		return "Sans"
	case strings.Contains(f, "serif") || strings.Contains(f, "times"):
		return "Serif"
	default:
		return "Sans"
	}
}

// timeLayout converts the strftime-style tokens the dashboards send into a
// Go reference layout.
func timeLayout(strf string) string {
	return strftimeReplacer.Replace(strf)
}

var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006",
	"%y", "06",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%I", "03",
	"%M", "04",
	"%S", "05",
	"%b", "Jan",
	"%B", "January",
	"%a", "Mon",
	"%A", "Monday",
	"%p", "PM",
	"%%", "%",
)
