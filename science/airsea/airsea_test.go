/*
Copyright © 2018 the CarbSea authors.
This file is part of CarbSea.

CarbSea is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CarbSea is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CarbSea.  If not, see <http://www.gnu.org/licenses/>.
*/

package airsea

import (
	"math"
	"testing"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/unit"

	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/carbonate"
)

const testTolerance = 1.e-9

func TestSchmidtNumber(t *testing.T) {
	// Wanninkhof (2014) gives Sc = 668.3 for seawater at 20 °C.
	if different(SchmidtNumber(20.)*schmidtNorm, 668.344, testTolerance) {
		t.Errorf("Schmidt number at 20 °C is %g, want 668.344", SchmidtNumber(20.)*schmidtNorm)
	}
	if different(SchmidtNumber(20.), 1.0126424242424243, testTolerance) {
		t.Errorf("normalized Schmidt number at 20 °C is %g", SchmidtNumber(20.))
	}
	if different(SchmidtNumber(15.), 1.3109144886363635, testTolerance) {
		t.Errorf("normalized Schmidt number at 15 °C is %g", SchmidtNumber(15.))
	}
	// At 0 °C only the constant polynomial term remains.
	if different(SchmidtNumber(0.), schmidtA0/schmidtNorm, 1.e-12) {
		t.Errorf("normalized Schmidt number at 0 °C is %g, want %g",
			SchmidtNumber(0.), schmidtA0/schmidtNorm)
	}
}

func TestPistonVelocity(t *testing.T) {
	p := DefaultParameters()

	if different(p.PistonVelocity(10., 15.), 8.175987491852848e-05, testTolerance) {
		t.Errorf("piston velocity at 10 m/s, 15 °C is %g", p.PistonVelocity(10., 15.))
	}
	if different(p.PistonVelocity(10., 20.), 9.302492768661386e-05, testTolerance) {
		t.Errorf("piston velocity at 10 m/s, 20 °C is %g", p.PistonVelocity(10., 20.))
	}

	// Doubling the wind speed must quadruple the transfer velocity.
	if different(p.PistonVelocity(10., 20.), 4*p.PistonVelocity(5., 20.), 1.e-12) {
		t.Errorf("piston velocity is not quadratic in wind speed: Kw(10)=%g, Kw(5)=%g",
			p.PistonVelocity(10., 20.), p.PistonVelocity(5., 20.))
	}
	if p.PistonVelocity(0., 20.) != 0 {
		t.Errorf("piston velocity at zero wind is %g, want 0", p.PistonVelocity(0., 20.))
	}

	// Regressing the transfer velocity against the squared wind speed
	// must recover the exchange coefficient over the Schmidt number
	// factor, with no intercept.
	var x, y []float64
	for u := 2.; u <= 14; u++ {
		x = append(x, u*u)
		y = append(y, p.PistonVelocity(u, 20.))
	}
	slope, intercept, rsquared, _, _, _ := stats.LinearRegression(x, y)
	if different(slope, 9.302492768661387e-07, testTolerance) {
		t.Errorf("piston velocity regression slope is %g", slope)
	}
	if math.Abs(intercept) > 1.e-15 {
		t.Errorf("piston velocity regression intercept is %g, want 0", intercept)
	}
	if different(rsquared, 1., testTolerance) {
		t.Errorf("piston velocity regression r² is %g, want 1", rsquared)
	}
}

// fixedSolver returns a prescribed equilibrium and records the
// conditions and pH guesses it was called with.
type fixedSolver struct {
	eq      carbonate.Equilibrium
	conds   []carbonate.Conditions
	guesses []float64
}

func (s *fixedSolver) Equilibrate(c carbonate.Conditions, pHGuess float64) (*carbonate.Equilibrium, error) {
	s.conds = append(s.conds, c)
	s.guesses = append(s.guesses, pHGuess)
	eq := s.eq
	return &eq, nil
}

func TestFluxSign(t *testing.T) {
	surface := SurfaceState{
		Temperature: 20.,
		Salinity:    35.,
		DIC:         2.1,
		Alkalinity:  2.4,
		Phosphate:   5.e-4,
		PHGuess:     8.,
	}

	// With equal solubilities on both sides of the interface the flux
	// direction is set by the partial pressure difference alone.
	cases := []struct {
		pCO2Ocean, flux float64
	}{
		{290.e-6, 2.8591211524480818e-08},  // supersaturated, outgassing
		{270.e-6, -2.8591211524480656e-08}, // undersaturated, uptake
		{280.e-6, 0.},                      // in equilibrium
	}
	for _, c := range cases {
		solver := &fixedSolver{eq: carbonate.Equilibrium{
			PH:                   8.1,
			PCO2:                 c.pCO2Ocean,
			AtmosphereSolubility: 0.03,
			OceanSolubility:      0.03,
		}}
		ex, err := NewExchange(DefaultParameters(), solver, nil)
		if err != nil {
			t.Fatal(err)
		}
		r, err := ex.Flux(surface, 10., 280.e-6)
		if err != nil {
			t.Fatal(err)
		}
		if c.flux == 0 {
			if r.Flux != 0 {
				t.Errorf("pCO₂=%g atm: flux is %g, want 0", c.pCO2Ocean, r.Flux)
			}
		} else if different(r.Flux, c.flux, testTolerance) {
			t.Errorf("pCO₂=%g atm: flux is %g, want %g", c.pCO2Ocean, r.Flux, c.flux)
		}
		if (r.Flux > 0) != (c.flux > 0) || (r.Flux < 0) != (c.flux < 0) {
			t.Errorf("pCO₂=%g atm: flux %g has the wrong sign", c.pCO2Ocean, r.Flux)
		}
	}
}

func TestFluxUnitConversion(t *testing.T) {
	p := DefaultParameters()
	solver := &fixedSolver{eq: carbonate.Equilibrium{
		PH: 8.1, PCO2: 280.e-6, AtmosphereSolubility: 0.03, OceanSolubility: 0.03,
	}}
	ex, err := NewExchange(p, solver, nil)
	if err != nil {
		t.Fatal(err)
	}

	surface := SurfaceState{
		Temperature: 15.,
		Salinity:    35.,
		DIC:         2.05e-3 * p.ReferenceDensity,
		Alkalinity:  2.335e-3 * p.ReferenceDensity,
		Phosphate:   5.e-7 * p.ReferenceDensity,
		PHGuess:     8.,
	}
	if _, err := ex.Flux(surface, 10., 280.e-6); err != nil {
		t.Fatal(err)
	}

	// The volumetric-to-specific conversion must round-trip exactly.
	cond := solver.conds[0]
	if cond.DIC != 2.05e-3 || cond.Alkalinity != 2.335e-3 || cond.Phosphate != 5.e-7 {
		t.Errorf("specific concentrations are DIC=%g, Alk=%g, PO₄=%g",
			cond.DIC, cond.Alkalinity, cond.Phosphate)
	}
	if cond.DIC*p.ReferenceDensity != surface.DIC {
		t.Errorf("DIC does not round-trip: %g mol/m³ became %g mol/m³",
			surface.DIC, cond.DIC*p.ReferenceDensity)
	}
	if cond.Silicate != p.Silicate {
		t.Errorf("silicate is %g, want %g", cond.Silicate, p.Silicate)
	}
	if solver.guesses[0] != 8. {
		t.Errorf("pH guess is %g, want 8", solver.guesses[0])
	}
}

func TestNewExchangeErrors(t *testing.T) {
	p := DefaultParameters()
	p.ReferenceDensity = 0
	if _, err := NewExchange(p, nil, nil); err == nil {
		t.Error("NewExchange should have failed for zero reference density")
	}
	p = DefaultParameters()
	p.ExchangeCoefficient = -1
	if _, err := NewExchange(p, nil, nil); err == nil {
		t.Error("NewExchange should have failed for a negative exchange coefficient")
	}
}

// exchangeTestSimulation creates a two-layer simulation with uniform
// preindustrial surface water.
func exchangeTestSimulation(t *testing.T, p Parameters) *carbsea.Simulation {
	ρ := p.ReferenceDensity
	cfg := carbsea.GridConfig{
		Nx: 4, Ny: 3, Dx: 1.e4, Dy: 1.e4,
		LayerThicknesses: []float64{50, 150},
		Temperature:      []float64{15.},
		Salinity:         []float64{35.},
		InitialConcentrations: map[string][]float64{
			"DIC": {2.05e-3 * ρ},
			"Alk": {2.335e-3 * ρ},
			"PO4": {5.e-7 * ρ},
		},
	}
	d := &carbsea.Simulation{
		InitFuncs: []carbsea.DomainManipulator{
			cfg.RegularGrid(nil),
			carbsea.SetTimestep(1800.),
		},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestExchange(t *testing.T) {
	p := DefaultParameters()
	d := exchangeTestSimulation(t, p)
	ex, err := NewExchange(p, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	diagnose := ex.Diagnose()

	if err := diagnose(d); err != nil {
		t.Fatal(err)
	}

	// The water is about 12 μatm supersaturated against the 280 μatm
	// atmosphere, so every surface cell outgasses.
	const (
		flux = 5.5357459768188614e-08
		pco2 = 2.92001250283527e-04
		ph   = 8.165604224242465
	)
	for _, c := range d.SurfaceCells() {
		if different(c.CO2Flux, flux, testTolerance) {
			t.Errorf("cell (%d,%d): flux is %g, want %g", c.Row, c.Col, c.CO2Flux, flux)
		}
		if c.CO2Flux <= 1.e-8 || c.CO2Flux >= 1.e-7 {
			t.Errorf("cell (%d,%d): flux %g is outside (1e-8, 1e-7)", c.Row, c.Col, c.CO2Flux)
		}
		if different(c.PCO2Ocean, pco2, testTolerance) {
			t.Errorf("cell (%d,%d): ocean pCO₂ is %g, want %g", c.Row, c.Col, c.PCO2Ocean, pco2)
		}
		if c.PCO2Atmosphere != 280.e-6 {
			t.Errorf("cell (%d,%d): atmospheric pCO₂ is %g, want 280e-6", c.Row, c.Col, c.PCO2Atmosphere)
		}
	}
	for _, c := range d.Cells() {
		if c.Layer > 0 && (c.CO2Flux != 0 || c.PCO2Ocean != 0) {
			t.Errorf("subsurface cell (%d,%d,%d) has flux %g", c.Layer, c.Row, c.Col, c.CO2Flux)
		}
	}

	// The solved pH is kept as the starting point for the next step.
	for i := range d.SurfaceCells() {
		if different(ex.ph.Elements[i], ph, testTolerance) {
			t.Errorf("stored pH for surface cell %d is %g, want %g", i, ex.ph.Elements[i], ph)
		}
	}

	// Low-DIC water takes carbon up instead.
	iDIC, err := carbsea.TracerIndex("DIC")
	if err != nil {
		t.Fatal(err)
	}
	iAlk, err := carbsea.TracerIndex("Alk")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range d.SurfaceCells() {
		c.Cf[iDIC] = 1.95e-3 * p.ReferenceDensity
		c.Cf[iAlk] = 2.34e-3 * p.ReferenceDensity
	}
	if err := diagnose(d); err != nil {
		t.Fatal(err)
	}
	const uptakeFlux = -2.944555924398375e-07
	for _, c := range d.SurfaceCells() {
		if different(c.CO2Flux, uptakeFlux, testTolerance) {
			t.Errorf("cell (%d,%d): uptake flux is %g, want %g", c.Row, c.Col, c.CO2Flux, uptakeFlux)
		}
		if c.CO2Flux >= 0 {
			t.Errorf("cell (%d,%d): flux %g should be negative", c.Row, c.Col, c.CO2Flux)
		}
	}
}

func TestExchangeForcing(t *testing.T) {
	p := DefaultParameters()
	pCO2Pa := 30. // Pa
	forcing, err := carbsea.NewConstantForcing(
		unit.New(5., unit.MeterPerSecond),
		unit.New(pCO2Pa, unit.Pascal))
	if err != nil {
		t.Fatal(err)
	}

	solver := &fixedSolver{eq: carbonate.Equilibrium{
		PH: 8.1, PCO2: 290.e-6, AtmosphereSolubility: 0.03, OceanSolubility: 0.03,
	}}
	d := exchangeTestSimulation(t, p)
	ex, err := NewExchange(p, solver, forcing)
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.Diagnose()(d); err != nil {
		t.Fatal(err)
	}

	// The forced wind is half the default, so with everything else
	// unchanged the flux magnitude drops by a factor of four.
	unforced := &fixedSolver{eq: solver.eq}
	d2 := exchangeTestSimulation(t, p)
	p2 := p
	p2.WindSpeed = 10.
	ex2, err := NewExchange(p2, unforced, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ex2.Diagnose()(d2); err != nil {
		t.Fatal(err)
	}

	wantPCO2 := pCO2Pa / 101325.
	for i, c := range d.SurfaceCells() {
		c2 := d2.SurfaceCells()[i]
		if different(4*c.CO2Flux, c2.CO2Flux, 1.e-12) {
			t.Errorf("cell (%d,%d): forced flux is %g, want a quarter of %g",
				c.Row, c.Col, c.CO2Flux, c2.CO2Flux)
		}
		if c.PCO2Atmosphere != wantPCO2 {
			t.Errorf("cell (%d,%d): atmospheric pCO₂ is %g, want %g",
				c.Row, c.Col, c.PCO2Atmosphere, wantPCO2)
		}
	}
}

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}
