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

// Package carbonate calculates the equilibrium state of the seawater
// carbonate system.
//
// Given temperature, salinity, dissolved inorganic carbon, titration
// alkalinity, and the total phosphate and silicate concentrations, the
// solver finds the hydrogen ion concentration that balances the
// alkalinity and from it the CO₂ partial pressure of the water. All
// equilibrium constants are on the total hydrogen ion scale and all
// concentrations are in mol per kg of seawater.
package carbonate

import (
	"fmt"
	"math"
)

// physical constants
const (
	// zeroCelsius converts water temperature to an absolute scale [K].
	zeroCelsius = 273.15

	// boronToSalinity is the mean oceanic ratio of total boron
	// [mol/kg] to salinity [psu]; Uppström (1974).
	boronToSalinity = 0.0004157 / 35.
)

// Conditions describe the state of a parcel of surface seawater and the
// air above it.
type Conditions struct {
	// Temperature is the water temperature [°C].
	Temperature float64

	// Salinity is the practical salinity [psu].
	Salinity float64

	// PressureAnomaly is the deviation of the atmospheric pressure
	// from one standard atmosphere [atm].
	PressureAnomaly float64

	// DIC is the dissolved inorganic carbon concentration [mol/kg].
	DIC float64

	// Alkalinity is the titration alkalinity [mol/kg].
	Alkalinity float64

	// Phosphate is the total dissolved inorganic phosphorus
	// concentration [mol/kg].
	Phosphate float64

	// Silicate is the total dissolved inorganic silicon
	// concentration [mol/kg].
	Silicate float64

	// PCO2Atmosphere is the CO₂ partial pressure of the overlying
	// air [atm].
	PCO2Atmosphere float64
}

// Equilibrium is the solved state of the carbonate system.
type Equilibrium struct {
	// PH is the sea surface pH on the total hydrogen ion scale.
	PH float64

	// PCO2 is the CO₂ partial pressure of the water [atm].
	PCO2 float64

	// CO2Star is the concentration of dissolved CO₂ plus carbonic
	// acid in the water [mol/kg].
	CO2Star float64

	// DCO2Star is the difference between the CO₂ concentration in
	// equilibrium with the overlying air and CO2Star [mol/kg];
	// positive when the water is undersaturated.
	DCO2Star float64

	// AtmosphereSolubility is the CO₂ solubility to use on the air
	// side of the interface [mol/kg/atm]. It includes the fugacity
	// correction of Weiss and Price (1980) and the local atmospheric
	// pressure anomaly.
	AtmosphereSolubility float64

	// OceanSolubility is the CO₂ solubility to use on the water side
	// of the interface [mol/kg/atm]; Weiss (1974).
	OceanSolubility float64
}

// A System iteratively solves for the equilibrium state of the seawater
// carbonate system.
type System struct {
	// MaxIterations is the maximum number of pH solver iterations.
	MaxIterations int

	// Tolerance is the relative width of the hydrogen ion
	// concentration bracket at which the iteration is considered
	// converged.
	Tolerance float64
}

// NewSystem returns a System with default solver settings.
func NewSystem() *System {
	return &System{
		MaxIterations: 100,
		Tolerance:     1.e-12,
	}
}

// The hydrogen ion concentration is always sought within [hMin, hMax],
// which corresponds to a pH between 0 and 14 and therefore spans all
// water that can meaningfully be called seawater.
const (
	hMin = 1.e-14
	hMax = 1.
)

// Equilibrate solves the carbonate system for the given conditions.
// pHGuess is the starting point for the hydrogen ion iteration; the
// converged result does not depend on it. An error is returned if the
// iteration does not converge within the configured number of steps.
func (s *System) Equilibrate(c Conditions, pHGuess float64) (*Equilibrium, error) {
	if c.Salinity < 0 {
		return nil, fmt.Errorf("carbonate: negative salinity %g", c.Salinity)
	}
	if c.DIC <= 0 || c.Alkalinity <= 0 {
		return nil, fmt.Errorf("carbonate: non-positive DIC (%g) or alkalinity (%g)",
			c.DIC, c.Alkalinity)
	}

	tk := c.Temperature + zeroCelsius
	sal := c.Salinity

	var (
		k1v  = k1(tk, sal)
		k2v  = k2(tk, sal)
		kbv  = kb(tk, sal)
		kwv  = kw(tk, sal)
		kp1v = kp1(tk, sal)
		kp2v = kp2(tk, sal)
		kp3v = kp3(tk, sal)
		ksiv = ksi(tk, sal)
		bt   = boronToSalinity * sal
	)

	// residual is the difference between the alkalinity calculated
	// from a trial hydrogen ion concentration and the prescribed
	// alkalinity. It is strictly decreasing in h, so the equilibrium
	// is the unique root.
	residual := func(h float64) float64 {
		cdenom := h*h + k1v*h + k1v*k2v
		hco3 := c.DIC * k1v * h / cdenom
		co3 := c.DIC * k1v * k2v / cdenom

		pdenom := h*h*h + kp1v*h*h + kp1v*kp2v*h + kp1v*kp2v*kp3v
		h3po4 := c.Phosphate * h * h * h / pdenom
		hpo4 := c.Phosphate * kp1v * kp2v * h / pdenom
		po4 := c.Phosphate * kp1v * kp2v * kp3v / pdenom

		alk := hco3 + 2*co3 +
			bt*kbv/(kbv+h) +
			kwv/h - h +
			hpo4 + 2*po4 - h3po4 +
			c.Silicate*ksiv/(ksiv+h)
		return alk - c.Alkalinity
	}

	h, err := s.solve(residual, pHGuess)
	if err != nil {
		return nil, err
	}

	co2star := c.DIC * h * h / (h*h + k1v*h + k1v*k2v)
	k0v := k0(tk, sal)
	ffv := ff(tk, sal) * (1 + c.PressureAnomaly)

	return &Equilibrium{
		PH:                   -math.Log10(h),
		PCO2:                 co2star / k0v,
		CO2Star:              co2star,
		DCO2Star:             ffv*c.PCO2Atmosphere - co2star,
		AtmosphereSolubility: ffv,
		OceanSolubility:      k0v,
	}, nil
}

// solve finds the root of the strictly decreasing residual function
// using secant steps safeguarded by a shrinking bisection bracket.
func (s *System) solve(residual func(float64) float64, pHGuess float64) (float64, error) {
	lo, hi := hMin, hMax

	h := math.Pow(10, -pHGuess)
	if h <= lo || h >= hi {
		h = math.Sqrt(lo * hi)
	}

	hPrev, rPrev := 0., 0.
	havePrev := false
	for i := 0; i < s.MaxIterations; i++ {
		r := residual(h)
		if r == 0 {
			return h, nil
		}
		if r > 0 {
			lo = h
		} else {
			hi = h
		}
		if hi-lo <= s.Tolerance*hi {
			return 0.5 * (lo + hi), nil
		}

		next := 0.5 * (lo + hi)
		if havePrev && r != rPrev {
			hs := h - r*(h-hPrev)/(r-rPrev)
			if hs > lo && hs < hi {
				next = hs
			}
		}
		hPrev, rPrev, havePrev = h, r, true
		h = next
	}
	return 0, fmt.Errorf("carbonate: pH iteration failed to converge after %d steps", s.MaxIterations)
}

// k0 is the solubility of CO₂ in seawater [mol/kg/atm] as a function of
// temperature [K] and salinity [psu]; Weiss (1974).
func k0(tk, s float64) float64 {
	th := tk / 100
	return math.Exp(93.4517/th - 60.2409 + 23.3585*math.Log(th) +
		s*(0.023517-0.023656*th+0.0047036*th*th))
}

// ff is the solubility of CO₂ in seawater including the fugacity
// correction for a non-ideal gas [mol/kg/atm]; Weiss and Price (1980).
func ff(tk, s float64) float64 {
	th := tk / 100
	return math.Exp(-162.8301 + 218.2968/th + 90.9241*math.Log(th) - 1.47696*th*th +
		s*(0.025695-0.025225*th+0.0049867*th*th))
}

// k1 is the first dissociation constant of carbonic acid [mol/kg];
// Lueker, Dickson and Keeling (2000).
func k1(tk, s float64) float64 {
	pk := 3633.86/tk - 61.2172 + 9.6777*math.Log(tk) - 0.011555*s + 0.0001152*s*s
	return math.Pow(10, -pk)
}

// k2 is the second dissociation constant of carbonic acid [mol/kg];
// Lueker, Dickson and Keeling (2000).
func k2(tk, s float64) float64 {
	pk := 471.78/tk + 25.9290 - 3.16967*math.Log(tk) - 0.01781*s + 0.0001122*s*s
	return math.Pow(10, -pk)
}

// kb is the dissociation constant of boric acid [mol/kg]; Dickson (1990).
func kb(tk, s float64) float64 {
	sq := math.Sqrt(s)
	return math.Exp((-8966.90-2890.53*sq-77.942*s+1.728*s*sq-0.0996*s*s)/tk +
		148.0248 + 137.1942*sq + 1.62142*s +
		(-24.4344-25.085*sq-0.2474*s)*math.Log(tk) +
		0.053105*sq*tk)
}

// kw is the ion product of water [mol²/kg²]; Millero (1995).
func kw(tk, s float64) float64 {
	sq := math.Sqrt(s)
	return math.Exp(148.9652 - 13847.26/tk - 23.6521*math.Log(tk) +
		(118.67/tk-5.977+1.0495*math.Log(tk))*sq - 0.01615*s)
}

// kp1, kp2 and kp3 are the dissociation constants of phosphoric acid
// [mol/kg]; Millero (1995).
func kp1(tk, s float64) float64 {
	sq := math.Sqrt(s)
	return math.Exp(-4576.752/tk + 115.525 - 18.453*math.Log(tk) +
		(-106.736/tk+0.69171)*sq + (-0.65643/tk-0.01844)*s)
}

func kp2(tk, s float64) float64 {
	sq := math.Sqrt(s)
	return math.Exp(-8814.715/tk + 172.0883 - 27.927*math.Log(tk) +
		(-160.340/tk+1.3566)*sq + (0.37335/tk-0.05778)*s)
}

func kp3(tk, s float64) float64 {
	sq := math.Sqrt(s)
	return math.Exp(-3070.75/tk - 18.141 +
		(17.27039/tk+2.81197)*sq + (-44.99486/tk-0.09984)*s)
}

// ksi is the dissociation constant of silicic acid [mol/kg];
// Millero (1995).
func ksi(tk, s float64) float64 {
	is := 19.924 * s / (1000. - 1.005*s)
	sq := math.Sqrt(is)
	return math.Exp(-8904.2/tk + 117.385 - 19.334*math.Log(tk) +
		(-458.79/tk+3.5913)*sq + (188.74/tk-1.5998)*is +
		(-12.1652/tk+0.07871)*is*is +
		math.Log(1.-0.001005*s))
}
