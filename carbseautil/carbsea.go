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

package carbseautil

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/oceanmodel/carbsea"
	"github.com/oceanmodel/carbsea/science/airsea"
	"github.com/oceanmodel/carbsea/science/bio"
	"github.com/spf13/cobra"
)

// Run runs the model to steady state. LogFile and OutputFile are the
// locations to write the log and the model output, and OutputVariables
// and OutputAllLayers specify what should be written there every
// OutputInterval seconds of simulation time. If createGrid is true, the
// model grid is created from grid before the simulation starts,
// otherwise it is loaded from GridDataFile. airSea and forcing control
// the air-sea CO₂ exchange diagnostic, and mech, which may be nil,
// adds export production to the simulation. If NumIterations > 0 the
// simulation stops after that many iterations of length Timestep,
// otherwise it stops when the tracer inventories converge.
func Run(CobraCommand *cobra.Command, LogFile, OutputFile string, OutputAllLayers bool,
	OutputVariables map[string]string, OutputInterval float64, grid *carbsea.GridConfig,
	airSea airsea.Parameters, forcing carbsea.Forcing, mech *bio.Mechanism,
	GridDataFile string, createGrid bool, NumIterations int, Timestep float64) error {

	startTime := time.Now()

	// Start a function to receive and print log messages.
	logfile, err := os.Create(LogFile)
	if err != nil {
		return fmt.Errorf("carbsea: problem creating log file: %v", err)
	}
	mw := io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	log.SetOutput(mw)
	cConverge := make(chan string)
	cLog := make(chan *carbsea.SimulationStatus)
	cLogTick := time.Tick(2 * time.Second)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		for msg := range cConverge {
			log.Println(msg)
		}
		wg.Done()
	}()
	go func() {
		for msg := range cLog {
			select {
			case <-cLogTick:
				log.Println(msg)
			default:
				runtime.Gosched()
			}
		}
		wg.Done()
	}()
	defer func() {
		close(cConverge)
		close(cLog)
		wg.Wait() // Wait for the log messages to finish printing.
		logfile.Close()
	}()

	log.Println("Parsing output variable expressions...")
	o, err := carbsea.NewOutputter(OutputFile, OutputAllLayers, OutputVariables, nil)
	if err != nil {
		return err
	}

	// A nil *bio.Mechanism must stay a nil interface so that abiotic
	// runs don't register any extra output species.
	var m carbsea.Mechanism
	if mech != nil {
		m = mech
	}

	ex, err := airsea.NewExchange(airSea, nil, forcing)
	if err != nil {
		return err
	}

	var initFuncs []carbsea.DomainManipulator
	if createGrid {
		initFuncs = []carbsea.DomainManipulator{
			grid.RegularGrid(m),
			carbsea.SetTimestep(Timestep),
			o.CheckOutputVars(),
		}
	} else { // pre-created grid
		var r io.Reader
		r, err = os.Open(GridDataFile)
		if err != nil {
			return fmt.Errorf("carbsea: problem opening grid data file: %v", err)
		}
		initFuncs = []carbsea.DomainManipulator{
			carbsea.Load(r, m),
			carbsea.SetTimestep(Timestep),
			o.CheckOutputVars(),
		}
	}

	runFuncs := []carbsea.DomainManipulator{
		carbsea.Log(cLog),
	}
	if mech != nil {
		runFuncs = append(runFuncs,
			carbsea.Calculations(mech.Sources()),
			mech.Remineralize(),
		)
	}
	runFuncs = append(runFuncs,
		ex.Diagnose(),
		carbsea.Calculations(carbsea.ApplyCO2Flux()),
		carbsea.SteadyStateConvergenceCheck(NumIterations, cConverge),
		// The output writer runs after the convergence check so that
		// it sees the Done flag on the final iteration.
		carbsea.RunPeriodically(OutputInterval, o.Output()),
	)

	d := &carbsea.Simulation{
		InitFuncs: initFuncs,
		RunFuncs:  runFuncs,
		CleanupFuncs: []carbsea.DomainManipulator{
			func(*carbsea.Simulation) error { return o.Close() },
		},
	}

	log.Println("Initializing model...")
	if err = d.Init(); err != nil {
		return fmt.Errorf("carbsea: problem initializing model: %v", err)
	}

	inventories := make([]float64, len(carbsea.TracerNames))
	for _, c := range d.Cells() {
		for i, val := range c.Cf {
			inventories[i] += val * c.Volume
		}
	}
	log.Println("Initial tracer inventories:")
	for i, name := range carbsea.TracerNames {
		log.Printf("%v, %g mol\n", name, inventories[i])
	}

	if err = d.Run(); err != nil {
		return fmt.Errorf("carbsea: problem running simulation: %v", err)
	}

	if err = d.Cleanup(); err != nil {
		return fmt.Errorf("carbsea: problem shutting down model: %v", err)
	}

	var flux, area float64
	for _, c := range d.SurfaceCells() {
		flux += c.CO2Flux * c.Dx * c.Dy
		area += c.Dx * c.Dy
	}
	log.Printf("Mean air-sea CO₂ flux: %g mol/m²/s (positive up)\n", flux/area)

	elapsedTime := time.Since(startTime)
	log.Printf("Elapsed time: %g seconds", elapsedTime.Seconds())

	return nil
}

// Grid creates the model grid with its initial tracer state as
// specified by grid and saves it to GridDataFile for later use.
func Grid(GridDataFile string, grid *carbsea.GridConfig) error {
	log.Println("Creating grid...")

	w, err := os.Create(GridDataFile)
	if err != nil {
		return fmt.Errorf("carbsea: problem creating grid data file: %v", err)
	}
	defer w.Close()

	// The grid manipulators are run directly instead of through
	// Simulation.Init because grid creation doesn't involve a time
	// step.
	d := new(carbsea.Simulation)
	for _, f := range []carbsea.DomainManipulator{grid.RegularGrid(nil), carbsea.Save(w)} {
		if err := f(d); err != nil {
			return err
		}
	}

	log.Printf("Grid successfully created at %s", GridDataFile)
	return nil
}
