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

// Mechanism is an interface for ocean biogeochemistry mechanisms.
type Mechanism interface {
	// Sources returns a function that applies this mechanism's
	// biogeochemical sources and sinks to the tracer concentrations
	// in a grid cell.
	Sources() CellManipulator

	// Species returns the names of the additional variables that this
	// mechanism can report beyond the model tracers.
	Species() []string

	// Value returns the value of the given mechanism variable in the
	// given Cell. It returns an error if given an invalid variable name.
	Value(c *Cell, variable string) (float64, error)

	// Units returns the units of the given variable, or an error if the
	// variable name is invalid.
	Units(variable string) (string, error)
}
