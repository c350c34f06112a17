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

import (
	"encoding/gob"
	"fmt"
	"io"
)

// Save returns a function that saves the model state in d to a gob file
// (format description at https://golang.org/pkg/encoding/gob/).
func Save(w io.Writer) DomainManipulator {
	return func(d *Simulation) error {
		e := gob.NewEncoder(w)

		if err := e.Encode(d.cells); err != nil {
			return fmt.Errorf("carbsea.Simulation.Save: %v", err)
		}
		return nil
	}
}

// Load returns a function that loads the state from a previously Saved
// file into a Simulation, replacing any existing grid and attaching
// biogeochemistry mechanism m, which may be nil for abiotic runs.
func Load(r io.Reader, m Mechanism) DomainManipulator {
	return func(d *Simulation) error {
		dec := gob.NewDecoder(r)
		var cells []*Cell
		if err := dec.Decode(&cells); err != nil {
			return fmt.Errorf("carbsea.Simulation.Load: %v", err)
		}
		d.mechanism = m
		return d.initFromCells(cells)
	}
}

// initFromCells rebuilds the simulation grid from a flat list of cells.
func (d *Simulation) initFromCells(cells []*Cell) error {
	d.nx, d.ny, d.nz = 0, 0, 0
	for _, c := range cells {
		if c.Col+1 > d.nx {
			d.nx = c.Col + 1
		}
		if c.Row+1 > d.ny {
			d.ny = c.Row + 1
		}
		if c.Layer+1 > d.nz {
			d.nz = c.Layer + 1
		}
	}
	if len(cells) != d.nx*d.ny*d.nz {
		return fmt.Errorf("carbsea: loaded %d cells but grid is %dx%dx%d",
			len(cells), d.nx, d.ny, d.nz)
	}
	d.cells = make([]*Cell, len(cells))
	for _, c := range cells {
		i := c.Layer*d.ny*d.nx + c.Row*d.nx + c.Col
		if d.cells[i] != nil {
			return fmt.Errorf("carbsea: duplicate cell at layer=%d row=%d col=%d",
				c.Layer, c.Row, c.Col)
		}
		c.index = i
		d.cells[i] = c
	}
	return nil
}
