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

// Package airsea calculates the exchange of CO₂ across the sea surface.
//
// The flux is the product of a gas transfer (piston) velocity and the
// difference between the CO₂ concentration the water would have in
// equilibrium with the overlying air and the concentration it actually
// has. The transfer velocity follows the quadratic wind speed
// parameterization of Wanninkhof (2014) and the equilibrium
// concentrations come from the seawater carbonate system solver in
// package carbonate.
package airsea

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/sparse"

	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/carbonate"
)

// Coefficients of the Schmidt number polynomial for CO₂ in seawater
// over 0–40 °C, and its value at 20 °C used for normalization;
// Wanninkhof (2014), table 1.
const (
	schmidtA0   = 2116.8
	schmidtA1   = 136.25
	schmidtA2   = 4.7353
	schmidtA3   = 0.092307
	schmidtA4   = 0.0007555
	schmidtNorm = 660.
)

// cmPerHourToMPerS converts a gas transfer velocity from the cm/hr
// of the exchange coefficient to m/s.
const cmPerHourToMPerS = 1. / 3.6e5

// Parameters hold the physical settings of the air-sea exchange
// calculation. The zero value is not useful; start from
// DefaultParameters.
type Parameters struct {
	// ExchangeCoefficient relates the squared 10-meter wind speed to
	// the gas transfer velocity [cm/hr/(m/s)²]; Wanninkhof (2014).
	ExchangeCoefficient float64

	// WindSpeed is the 10-meter wind speed [m/s] used when no
	// forcing is supplied.
	WindSpeed float64

	// PCO2Atmosphere is the atmospheric CO₂ partial pressure [atm]
	// used when no forcing is supplied.
	PCO2Atmosphere float64

	// PressureAnomaly is the deviation of the sea-level atmospheric
	// pressure from one standard atmosphere [atm].
	PressureAnomaly float64

	// Silicate is the total dissolved inorganic silicon
	// concentration [mol/kg], which the model does not carry as a
	// tracer.
	Silicate float64

	// PHGuess is the sea surface pH the carbonate system iteration
	// starts from before any solution is available.
	PHGuess float64

	// ReferenceDensity is the density [kg/m³] used to convert
	// between volumetric and specific tracer concentrations.
	ReferenceDensity float64
}

// DefaultParameters returns the standard settings for the air-sea
// exchange calculation: a 280 μatm preindustrial atmosphere over a
// preindustrial ocean with a uniform 10 m/s wind.
func DefaultParameters() Parameters {
	return Parameters{
		ExchangeCoefficient: 0.337,
		WindSpeed:           10.,
		PCO2Atmosphere:      280.e-6,
		PressureAnomaly:     0.,
		Silicate:            15.e-6,
		PHGuess:             8.,
		ReferenceDensity:    1024.5,
	}
}

// SchmidtNumber returns the Schmidt number of CO₂ in seawater at water
// temperature t [°C], normalized by its value at 20 °C;
// Wanninkhof (2014).
func SchmidtNumber(t float64) float64 {
	return (schmidtA0 - schmidtA1*t + schmidtA2*t*t - schmidtA3*t*t*t +
		schmidtA4*t*t*t*t) / schmidtNorm
}

// PistonVelocity returns the gas transfer velocity [m/s] for 10-meter
// wind speed u10 [m/s] and water temperature t [°C]. It is quadratic
// in the wind speed and inversely proportional to the square root of
// the normalized Schmidt number.
func (p Parameters) PistonVelocity(u10, t float64) float64 {
	return p.ExchangeCoefficient * cmPerHourToMPerS * u10 * u10 /
		math.Sqrt(SchmidtNumber(t))
}

// An EquilibriumSolver calculates the equilibrium state of the
// seawater carbonate system; *carbonate.System is the standard
// implementation.
type EquilibriumSolver interface {
	Equilibrate(c carbonate.Conditions, pHGuess float64) (*carbonate.Equilibrium, error)
}

// SurfaceState describes the sea surface at one horizontal location.
// Concentrations are volumetric, as the model carries them.
type SurfaceState struct {
	Temperature float64 // °C
	Salinity    float64 // psu
	DIC         float64 // mol/m³
	Alkalinity  float64 // mol/m³
	Phosphate   float64 // mol/m³

	// PHGuess is the starting point for the carbonate system
	// iteration, normally the pH solved at this location in the
	// previous step.
	PHGuess float64
}

// FluxResult is the solved air-sea exchange at one location.
type FluxResult struct {
	// Flux is the CO₂ flux through the surface [mol/m²/s], positive
	// from the water to the air.
	Flux float64

	// PCO2Ocean and PCO2Atmosphere are the CO₂ partial pressures
	// [atm] on the two sides of the interface.
	PCO2Ocean      float64
	PCO2Atmosphere float64

	// PH is the solved sea surface pH.
	PH float64
}

// Exchange calculates the air-sea CO₂ flux over the model surface.
// It carries the solved pH of each surface cell between steps as the
// starting point for the next carbonate system iteration, so one
// Exchange must not be shared between simulations.
type Exchange struct {
	p       Parameters
	solver  EquilibriumSolver
	forcing carbsea.Forcing
	ph      *sparse.DenseArray

	iDIC, iAlk, iPO4 int
}

// NewExchange creates an air-sea CO₂ exchange calculation with the
// given parameters. If solver is nil, a carbonate.System with default
// settings is used. If forcing is nil, the wind speed and atmospheric
// pCO₂ are held constant at the values in p.
func NewExchange(p Parameters, solver EquilibriumSolver, forcing carbsea.Forcing) (*Exchange, error) {
	if p.ReferenceDensity <= 0 {
		return nil, fmt.Errorf("airsea: non-positive reference density %g", p.ReferenceDensity)
	}
	if p.ExchangeCoefficient < 0 {
		return nil, fmt.Errorf("airsea: negative exchange coefficient %g", p.ExchangeCoefficient)
	}
	if solver == nil {
		solver = carbonate.NewSystem()
	}
	ex := &Exchange{p: p, solver: solver, forcing: forcing}
	var err error
	if ex.iDIC, err = carbsea.TracerIndex("DIC"); err != nil {
		return nil, err
	}
	if ex.iAlk, err = carbsea.TracerIndex("Alk"); err != nil {
		return nil, err
	}
	if ex.iPO4, err = carbsea.TracerIndex("PO4"); err != nil {
		return nil, err
	}
	return ex, nil
}

// Flux calculates the air-sea CO₂ flux for one surface location under
// wind speed u10 [m/s] and atmospheric CO₂ partial pressure
// pCO2Atmosphere [atm].
func (ex *Exchange) Flux(s SurfaceState, u10, pCO2Atmosphere float64) (FluxResult, error) {
	ρ := ex.p.ReferenceDensity
	eq, err := ex.solver.Equilibrate(carbonate.Conditions{
		Temperature:     s.Temperature,
		Salinity:        s.Salinity,
		PressureAnomaly: ex.p.PressureAnomaly,
		DIC:             s.DIC / ρ,
		Alkalinity:      s.Alkalinity / ρ,
		Phosphate:       s.Phosphate / ρ,
		Silicate:        ex.p.Silicate,
		PCO2Atmosphere:  pCO2Atmosphere,
	}, s.PHGuess)
	if err != nil {
		return FluxResult{}, err
	}
	kw := ex.p.PistonVelocity(u10, s.Temperature)
	flux := -kw * (pCO2Atmosphere*eq.AtmosphereSolubility - eq.PCO2*eq.OceanSolubility) * ρ
	return FluxResult{
		Flux:           flux,
		PCO2Ocean:      eq.PCO2,
		PCO2Atmosphere: pCO2Atmosphere,
		PH:             eq.PH,
	}, nil
}

// Diagnose returns a function that calculates the air-sea CO₂ flux for
// every surface cell of the simulation and stores the flux and the
// partial pressures on the two sides of the interface in the cells.
func (ex *Exchange) Diagnose() carbsea.DomainManipulator {
	return func(d *carbsea.Simulation) error {
		cells := d.SurfaceCells()
		if ex.ph == nil {
			ex.ph = sparse.ZerosDense(len(cells))
			for i := range cells {
				ex.ph.Elements[i] = ex.p.PHGuess
			}
		} else if len(ex.ph.Elements) != len(cells) {
			return fmt.Errorf("airsea: surface changed from %d to %d cells",
				len(ex.ph.Elements), len(cells))
		}

		u10 := ex.p.WindSpeed
		pCO2Atm := ex.p.PCO2Atmosphere
		if ex.forcing != nil {
			t := d.Time()
			u10 = ex.forcing.Wind(t)
			pCO2Atm = ex.forcing.PCO2(t)
		}

		var (
			wg       sync.WaitGroup
			mx       sync.Mutex
			firstErr error
		)
		nprocs := runtime.GOMAXPROCS(0)
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				defer wg.Done()
				for i := pp; i < len(cells); i += nprocs {
					c := cells[i]
					c.Lock()
					r, err := ex.Flux(SurfaceState{
						Temperature: c.Temperature,
						Salinity:    c.Salinity,
						DIC:         c.Cf[ex.iDIC],
						Alkalinity:  c.Cf[ex.iAlk],
						Phosphate:   c.Cf[ex.iPO4],
						PHGuess:     ex.ph.Elements[i],
					}, u10, pCO2Atm)
					if err != nil {
						c.Unlock()
						mx.Lock()
						if firstErr == nil {
							firstErr = fmt.Errorf("airsea: cell (%d,%d): %v", c.Row, c.Col, err)
						}
						mx.Unlock()
						return
					}
					c.CO2Flux = r.Flux
					c.PCO2Ocean = r.PCO2Ocean
					c.PCO2Atmosphere = r.PCO2Atmosphere
					c.Unlock()
					ex.ph.Elements[i] = r.PH
				}
			}(pp)
		}
		wg.Wait()
		return firstErr
	}
}
