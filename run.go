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
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"
)

const daysPerSecond = 1. / 3600. / 24.

// SetTimestep returns a function that sets the simulation time step [s].
func SetTimestep(Δt float64) DomainManipulator {
	return func(d *Simulation) error {
		if !(Δt > 0) {
			return fmt.Errorf("time step %g s is invalid; it must be positive", Δt)
		}
		d.Dt = Δt
		return nil
	}
}

// Calculations returns a function that concurrently runs a series of
// calculations on all of the model grid cells.
func Calculations(calculators ...CellManipulator) DomainManipulator {

	nprocs := runtime.GOMAXPROCS(0) // number of processors
	var wg sync.WaitGroup

	return func(d *Simulation) error {
		// Concurrently run all of the calculators on all of the cells.
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				var c *Cell
				for ii := pp; ii < len(d.cells); ii += nprocs {
					c = d.cells[ii]
					c.Lock() // Lock the cell to avoid race conditions
					for _, f := range calculators {
						f(c, d.Dt)
					}
					c.Unlock() // Unlock the cell: we're done editing it
				}
				wg.Done()
			}(pp)
		}
		wg.Wait()
		return nil
	}
}

// StopAtTime returns a function that finishes the simulation once at
// least stopTime seconds of simulation time have elapsed.
func StopAtTime(stopTime float64) DomainManipulator {
	return func(d *Simulation) error {
		if d.t+d.Dt >= stopTime {
			d.Done = true
		}
		return nil
	}
}

// SteadyStateConvergenceCheck checks whether a simulation has reached
// steady state and sets the Done flag if it has. If numIterations > 0,
// the simulation is finished after that number of iterations have
// completed. Otherwise, the simulation has finished if the change in
// domain-total mass of every tracer since the last check is less than
// 0.1%. If c is not nil, status messages are sent to it.
func SteadyStateConvergenceCheck(numIterations int, c chan string) DomainManipulator {

	const tolerance = 0.001   // tolerance for convergence
	const checkPeriod = 3600. // seconds, how often to check for convergence

	// oldSum is the domain-total mass of each tracer at the last check.
	oldSum := make([]float64, len(TracerNames))

	timeSinceLastCheck := 0.
	iteration := 0

	return func(d *Simulation) error {
		timeSinceLastCheck += d.Dt
		iteration++

		// If numIterations has been set, use it to determine when to
		// stop the model.
		if numIterations > 0 {
			if iteration >= numIterations {
				d.Done = true
			}
			// Otherwise, occasionally check to see if the tracer
			// inventories have converged.
		} else if timeSinceLastCheck >= checkPeriod {
			timeToQuit := true
			timeSinceLastCheck = 0.
			for ii, name := range TracerNames {
				var sum float64
				for _, cell := range d.cells {
					sum += cell.Cf[ii] * cell.Volume
				}
				if !checkConvergence(sum, oldSum[ii], tolerance, name, c) {
					timeToQuit = false
				}
				oldSum[ii] = sum
			}
			if timeToQuit {
				d.Done = true
			}
		}
		return nil
	}
}

func checkConvergence(newSum, oldSum, tolerance float64, name string, c chan string) bool {
	bias := (newSum - oldSum) / oldSum
	if c != nil {
		c <- fmt.Sprintf("%s: total mass difference = %3.2g%% from last check.",
			name, bias*100)
	}
	if math.Abs(bias) > tolerance || math.IsInf(bias, 0) {
		return false
	}
	return true
}

// RunPeriodically returns a function that runs f once every period
// seconds of simulation time, and also on the final iteration of the
// simulation.
func RunPeriodically(period float64, f DomainManipulator) DomainManipulator {
	timeSinceLastRun := math.Inf(1) // run on the first invocation
	return func(d *Simulation) error {
		timeSinceLastRun += d.Dt
		if timeSinceLastRun >= period || d.Done {
			timeSinceLastRun = 0
			return f(d)
		}
		return nil
	}
}

// SimulationStatus holds information about the progress of a simulation.
type SimulationStatus struct {
	// Iteration is the number of completed iterations.
	Iteration int

	// SimulationTime is the elapsed simulation time [s].
	SimulationTime float64

	// Dt is the simulation time step [s].
	Dt float64

	// Walltime is the elapsed real time since the simulation started.
	Walltime time.Duration

	// StepWalltime is the elapsed real time since the previous iteration.
	StepWalltime time.Duration
}

func (s *SimulationStatus) String() string {
	return fmt.Sprintf("Iteration %-4d  walltime=%6.3gh  Δwalltime=%4.2gs  "+
		"timestep=%2.0fs  day=%.3g",
		s.Iteration, s.Walltime.Hours(), s.StepWalltime.Seconds(),
		s.Dt, s.SimulationTime*daysPerSecond)
}

// Log returns a function that sends simulation status information to c.
func Log(c chan *SimulationStatus) DomainManipulator {
	startTime := time.Now()
	timeStepTime := time.Now()

	iteration := 0

	return func(d *Simulation) error {
		iteration++
		c <- &SimulationStatus{
			Iteration:      iteration,
			SimulationTime: d.t,
			Dt:             d.Dt,
			Walltime:       time.Since(startTime),
			StepWalltime:   time.Since(timeStepTime),
		}
		timeStepTime = time.Now()
		return nil
	}
}
