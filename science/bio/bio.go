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

// Package bio implements a nutrient-restoring biological carbon pump
// in the style of the OCMIP-2 biotic protocol (Najjar and Orr, 1999).
//
// Wherever the phosphate concentration in the euphotic zone exceeds an
// observed value, the excess is consumed at a fixed timescale and
// exported as sinking organic matter, which remineralizes in the water
// column below. Dissolved inorganic carbon and alkalinity follow the
// phosphate uptake in Redfield proportion.
package bio

import (
	"fmt"
	"math"

	"github.com/oceanmodel/carbsea"
)

// Mechanism is a biogeochemistry mechanism for the model tracers. The
// exported fields may be changed before the simulation starts.
type Mechanism struct {
	// CToP and NToP are the Redfield ratios of carbon and nitrogen
	// to phosphorus in organic matter [mol/mol]; Redfield (1963).
	CToP, NToP float64

	// ObservedPhosphate is the observed surface phosphate
	// concentration that production restores toward [mol/m³].
	ObservedPhosphate float64

	// RestoringTimescale is the e-folding time of the phosphate
	// restoring [s].
	RestoringTimescale float64

	// EuphoticDepth is the depth above which production occurs [m].
	EuphoticDepth float64

	iDIC, iAlk, iPO4 int
}

// NewMechanism returns a Mechanism with the standard OCMIP-2 settings:
// a 30-day restoring toward 0.5 mmol/m³ phosphate in the top 75 m.
func NewMechanism() (*Mechanism, error) {
	m := &Mechanism{
		CToP:               106.,
		NToP:               16.,
		ObservedPhosphate:  0.5e-3,
		RestoringTimescale: 30. * 24. * 3600.,
		EuphoticDepth:      75.,
	}
	var err error
	if m.iDIC, err = carbsea.TracerIndex("DIC"); err != nil {
		return nil, err
	}
	if m.iAlk, err = carbsea.TracerIndex("Alk"); err != nil {
		return nil, err
	}
	if m.iPO4, err = carbsea.TracerIndex("PO4"); err != nil {
		return nil, err
	}
	return m, nil
}

// production returns the phosphate uptake rate [mol/m³/s] in cell c.
func (m *Mechanism) production(c *carbsea.Cell) float64 {
	if c.Depth > m.EuphoticDepth {
		return 0
	}
	excess := c.Cf[m.iPO4] - m.ObservedPhosphate
	if excess <= 0 {
		return 0
	}
	return excess / m.RestoringTimescale
}

// Sources returns a function that consumes excess phosphate in the
// euphotic zone, draws down DIC and raises alkalinity in Redfield
// proportion, and records the export of organic phosphorus from each
// producing cell.
func (m *Mechanism) Sources() carbsea.CellManipulator {
	return func(c *carbsea.Cell, Δt float64) {
		jprod := m.production(c)
		if jprod == 0 {
			c.ExportProduction = 0
			return
		}
		c.Cf[m.iPO4] -= jprod * Δt
		c.Cf[m.iDIC] -= m.CToP * jprod * Δt
		c.Cf[m.iAlk] += m.NToP * jprod * Δt
		c.ExportProduction = jprod * c.Dz
	}
}

// Remineralize returns a function that dissolves the organic matter
// exported from the euphotic zone back into the water column below it,
// uniformly per unit volume, reversing the Redfield-proportion changes
// that production made. Columns with no cells below the euphotic zone
// remineralize in their bottom cell, so tracer mass is always
// conserved.
func (m *Mechanism) Remineralize() carbsea.DomainManipulator {
	return func(d *carbsea.Simulation) error {
		columns := make(map[[2]int][]*carbsea.Cell)
		for _, c := range d.Cells() {
			key := [2]int{c.Row, c.Col}
			columns[key] = append(columns[key], c)
		}
		for _, column := range columns {
			export := 0. // mol P/s
			for _, c := range column {
				c.RLock()
				export += c.ExportProduction * c.Dx * c.Dy
				c.RUnlock()
			}
			if export == 0 {
				continue
			}
			var receivers []*carbsea.Cell
			depth := 0.
			for _, c := range column {
				if c.Depth > m.EuphoticDepth {
					receivers = append(receivers, c)
					depth += c.Dz
				}
			}
			if len(receivers) == 0 {
				receivers = column[len(column)-1:]
				depth = receivers[0].Dz
			}
			for _, c := range receivers {
				c.Lock()
				Δpo4 := export * d.Dt / (depth * c.Dx * c.Dy)
				c.Cf[m.iPO4] += Δpo4
				c.Cf[m.iDIC] += m.CToP * Δpo4
				c.Cf[m.iAlk] -= m.NToP * Δpo4
				c.Unlock()
			}
		}
		return nil
	}
}

// Species returns the diagnostic variables this mechanism can
// calculate.
func (m *Mechanism) Species() []string {
	return []string{"PrimaryProduction"}
}

// Value returns the value of the named diagnostic in cell c.
func (m *Mechanism) Value(c *carbsea.Cell, variable string) (float64, error) {
	if variable != "PrimaryProduction" {
		return math.NaN(), fmt.Errorf("bio: invalid variable name %s; valid names are %v",
			variable, m.Species())
	}
	return m.CToP * m.production(c), nil
}

// Units returns the units of the named diagnostic.
func (m *Mechanism) Units(variable string) (string, error) {
	if variable != "PrimaryProduction" {
		return "", fmt.Errorf("bio: invalid variable name %s; valid names are %v",
			variable, m.Species())
	}
	return "mol/m³/s", nil
}
