/*
Copyright © 2017 the CarbSea authors.
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

package carbsea

// ApplyCO2Flux returns a function that converts the most recently
// computed air-sea CO₂ flux in each surface grid cell into a change in
// dissolved inorganic carbon concentration. The flux is positive upward,
// so outgassing decreases DIC and uptake increases it. Cells below the
// surface layer are unaffected.
func ApplyCO2Flux() CellManipulator {
	return func(c *Cell, Δt float64) {
		if c.Layer == 0 {
			c.Cf[iDIC] -= c.CO2Flux * Δt / c.Dz
		}
	}
}
