package annulus

import (
	"fmt"
	"image/color"
	"image/png"
	"math"
	"os"

	"gonum.org/v1/plot"
	_ "gonum.org/v1/plot/font/liberation"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/disk-kinematics/annulus/moments"
)

// walkerLabels name the sampled parameters in plot output.
var walkerLabels = [4]string{"vrot", "sigma_rms", "ln_sigma", "ln_rho"}

func applyPlotFonts(p *plot.Plot) {
	p.Title.TextStyle.Font.Typeface = "Liberation"
	p.Title.TextStyle.Font.Variant = "Sans"
	p.Title.TextStyle.Font.Size = vg.Points(12)

	p.X.Label.TextStyle.Font.Typeface = "Liberation"
	p.X.Label.TextStyle.Font.Variant = "Sans"
	p.X.Label.TextStyle.Font.Size = vg.Points(12)

	p.Y.Label.TextStyle.Font.Typeface = "Liberation"
	p.Y.Label.TextStyle.Font.Variant = "Sans"
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)

	p.X.Tick.Label.Font.Typeface = "Liberation"
	p.X.Tick.Label.Font.Variant = "Sans"
	p.X.Tick.Label.Font.Size = vg.Points(10)

	p.Y.Tick.Label.Font.Typeface = "Liberation"
	p.Y.Tick.Label.Font.Variant = "Sans"
	p.Y.Tick.Label.Font.Size = vg.Points(10)
}

func savePlotPNG(p *plot.Plot, wPx, hPx float64, filename string) (err error) {
	const dpi = 96
	width := vg.Length(wPx) * vg.Inch / dpi
	height := vg.Length(hPx) * vg.Inch / dpi

	c := vgimg.New(width, height)
	dc := vgdraw.New(c)
	p.Draw(dc)

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return png.Encode(f, c.Image())
}

// PlotSpectra saves a plot of every spectrum in the ensemble against the
// shared velocity axis.
func (e *Ensemble) PlotSpectra(filename string) error {
	p := plot.New()
	applyPlotFonts(p)
	p.Title.Text = "Annulus spectra"
	p.X.Label.Text = "Velocity"
	p.Y.Label.Text = "Intensity"
	p.X.Min = e.velax[0]
	p.X.Max = e.velax[len(e.velax)-1]
	p.Add(plotter.NewGrid())

	for _, spectrum := range e.spectra {
		pts := make(plotter.XYs, len(e.velax))
		for j := range e.velax {
			pts[j].X = e.velax[j]
			pts[j].Y = spectrum[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{A: 255}
		p.Add(line)
	}

	return savePlotPNG(p, 1200, 500, filename)
}

// riverGrid adapts deprojected spectra to the plotter heat-map interface:
// velocity along x, polar angle along y, row-normalized intensity as z.
type riverGrid struct {
	velax []float64
	theta []float64
	rows  [][]float64
}

func (g riverGrid) Dims() (c, r int)   { return len(g.velax), len(g.theta) }
func (g riverGrid) X(c int) float64    { return g.velax[c] }
func (g riverGrid) Y(r int) float64    { return g.theta[r] }
func (g riverGrid) Z(c, r int) float64 { return g.rows[r][c] }

// PlotRiver saves a river plot: the deprojected spectra stacked by polar
// angle, each row normalized to its own peak. Deprojection is skipped when
// vrot is zero, showing the raw spectra instead.
func (e *Ensemble) PlotRiver(vrot float64, filename string) error {
	var rows [][]float64
	if vrot == 0 {
		rows = e.spectra
	} else {
		rows = e.DeprojectedSpectra(vrot)
	}

	normed := make([][]float64, len(rows))
	for i, row := range rows {
		peak := math.Inf(-1)
		for _, v := range row {
			if !math.IsNaN(v) && v > peak {
				peak = v
			}
		}
		out := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || peak <= 0 {
				out[j] = 0.0
			} else {
				out[j] = v / peak
			}
		}
		normed[i] = out
	}

	p := plot.New()
	applyPlotFonts(p)
	p.Title.Text = "River plot"
	p.X.Label.Text = "Velocity"
	p.Y.Label.Text = "Polar angle (rad)"

	hm := plotter.NewHeatMap(riverGrid{velax: e.velax, theta: e.theta, rows: normed},
		palette.Heat(64, 1))
	hm.Min = 0.0
	hm.Max = 1.0
	p.Add(hm)

	// Mark each row's interpolated peak so residual curvature after
	// deprojection stands out.
	peaks := make(plotter.XYs, len(normed))
	for i, row := range normed {
		v, _ := moments.Quadratic(row, e.velax[0], e.channel)
		peaks[i].X = v
		peaks[i].Y = e.theta[i]
	}
	scatter, err := plotter.NewScatter(peaks)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Add(scatter)

	return savePlotPNG(p, 900, 700, filename)
}

// PlotWalkers saves one trace plot per sampled parameter, each walker as a
// faint line over steps with the burn-in boundary marked. Files are named
// <prefix>_<parameter>.png.
func PlotWalkers(chain [][][]float64, nburnin int, prefix string) error {
	if len(chain) == 0 || len(chain[0]) == 0 {
		return fmt.Errorf("empty chain")
	}
	dim := len(chain[0][0])

	for d := 0; d < dim; d++ {
		p := plot.New()
		applyPlotFonts(p)
		p.X.Label.Text = "Steps"
		if d < len(walkerLabels) {
			p.Y.Label.Text = walkerLabels[d]
		} else {
			p.Y.Label.Text = fmt.Sprintf("param %d", d)
		}

		yLo, yHi := math.Inf(1), math.Inf(-1)
		for _, walker := range chain {
			pts := make(plotter.XYs, len(walker))
			for s, pos := range walker {
				pts[s].X = float64(s)
				pts[s].Y = pos[d]
				if pos[d] < yLo {
					yLo = pos[d]
				}
				if pos[d] > yHi {
					yHi = pos[d]
				}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			line.Color = color.RGBA{A: 26}
			p.Add(line)
		}

		burn := plotter.XYs{
			{X: float64(nburnin), Y: yLo},
			{X: float64(nburnin), Y: yHi},
		}
		vline, err := plotter.NewLine(burn)
		if err != nil {
			return err
		}
		vline.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		vline.Color = color.RGBA{A: 255}
		p.Add(vline)

		name := fmt.Sprintf("%s_%s.png", prefix, p.Y.Label.Text)
		if err := savePlotPNG(p, 900, 400, name); err != nil {
			return err
		}
	}
	return nil
}
