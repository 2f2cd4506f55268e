// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"runtime/pprof"
	"time"

	nl "github.com/hyperlight-cam/hyperlight/internal"
	"github.com/hyperlight-cam/hyperlight/internal/calib"
	"github.com/hyperlight-cam/hyperlight/internal/config"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/ops"
	"github.com/hyperlight-cam/hyperlight/internal/ops/stage"
	"github.com/hyperlight-cam/hyperlight/internal/pipeline"
	"github.com/hyperlight-cam/hyperlight/internal/rest"
	"github.com/hyperlight-cam/hyperlight/internal/stats"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "hyperlight.yaml", "load settings from YAML `file`, if it exists")
var calibFile = flag.String("calib", "", "sensor calibration XML `file`, overrides config")
var matrix = flag.String("matrix", "", "name of the spectral correction matrix in the calibration file, overrides config")
var strategy = flag.String("strategy", "", "processing strategy, host or accel, overrides config")
var band = flag.Int("band", -1, "band to render, -1: use config")
var threads = flag.Int("threads", 0, "maximum number of host threads, 0: use config")
var expObject = flag.Uint("exposure", 0, "object exposure time in microseconds, 0: use config")
var expWhite = flag.Uint("exposureWhite", 0, "white reference exposure time in microseconds, 0: use config")

var format = flag.String("format", ops.FormatSensor, "input file format, sensor for full sensor frames or active for active area dumps")
var out = flag.String("out", "band%04d.tif", "save colour rendering of the band as 16-bit TIFF with given filename pattern, blank for none")
var snap = flag.String("snap", "", "save raw active area with given filename pattern, e.g. `snap%04d.hdr`")
var doStats = flag.Bool("stats", false, "log statistics of the raw frame and the rendered band")
var log = flag.String("log", "", "save log output to `file`, overrides config")

var addr = flag.String("addr", "", "listen address for serve, overrides config")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before accepting requests")
var setuid = flag.Int("setuid", -1, "serve: change user id before accepting requests, -1: keep")

func main() {
	logWriter := nl.LogWriter()
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Hyperlight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (process|stats|reference|serve|calib|config|legal|version) (args)

Commands:
  process   Process sensor frames into colour renderings of one band
  stats     Show input frame statistics
  reference Record a reference frame as the average of the inputs. First arg is the kind,
            one of dark, darkWhite or white
  serve     Serve the pipeline over HTTP
  calib     Show the geometry from the calibration file
  config    Write the current settings to the config file
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		nl.LogFatalf("Error loading config: %s\n", err.Error())
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		nl.LogFatalf("Error in settings: %s\n", err.Error())
	}

	// Initialize logging to file in addition to stdout, if selected
	if cfg.Output.LogFile != "" {
		if err := nl.LogAlsoToFile(cfg.Output.LogFile); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", cfg.Output.LogFile)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	switch args[0] {
	case "process":
		err = cmdProcess(cfg, args[1:], logWriter)

	case "stats":
		err = cmdStats(cfg, args[1:], logWriter)

	case "reference":
		err = cmdReference(cfg, args[1:], logWriter)

	case "serve":
		err = cmdServe(cfg, logWriter)

	case "calib":
		err = cmdCalib(cfg, logWriter)

	case "config":
		if err = config.SaveConfig(cfg, *configFile); err == nil {
			fmt.Fprintf(logWriter, "Wrote settings to %s\n", *configFile)
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		nl.ClearPools() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

// Overrides config settings with explicitly given flags
func applyFlags(cfg *config.Config) {
	if *calibFile != "" {
		cfg.Sensor.Calibration = *calibFile
	}
	if *matrix != "" {
		cfg.Sensor.MatrixName = *matrix
	}
	if *strategy != "" {
		cfg.Processing.Strategy = *strategy
	}
	if *band >= 0 {
		cfg.Processing.Band = int32(*band)
	}
	if *threads > 0 {
		cfg.Processing.MaxThreads = *threads
	}
	if *expObject > 0 {
		cfg.Exposure.Object = uint32(*expObject)
	}
	if *expWhite > 0 {
		cfg.Exposure.White = uint32(*expWhite)
	}
	if *log != "" {
		cfg.Output.LogFile = *log
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
}

// Loads the calibration and the references, and creates the pipeline and its strategies.
// The configured strategy comes first
func setup(cfg *config.Config, logWriter io.Writer) (*pipeline.Pipeline, []pipeline.Strategy, error) {
	g, err := calib.Load(cfg.Sensor.Calibration, cfg.Sensor.MatrixName)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(logWriter, "Calibration %s matrix %s: %s\n", cfg.Sensor.Calibration, cfg.Sensor.MatrixName, g.String())

	refs, err := pipeline.LoadReferences(g, referenceFiles(cfg), logWriter)
	if err != nil {
		return nil, nil, err
	}

	exp := pipeline.Exposures{Object: cfg.Exposure.Object, White: cfg.Exposure.White}
	p, err := pipeline.New(g, refs, exp, pipeline.WithLog(logWriter))
	if err != nil {
		return nil, nil, err
	}

	host := pipeline.NewHostStrategy(cfg.Processing.MaxThreads)
	a, err := pipeline.NewAccelStrategy(cfg.Processing.Device, logWriter)
	if err != nil {
		if cfg.Processing.Strategy == config.StrategyAccel {
			return nil, nil, err
		}
		fmt.Fprintf(logWriter, "Warning: %s, host strategy only\n", err.Error())
		return p, []pipeline.Strategy{host}, nil
	}
	a.UnmixLocal = cfg.Processing.UnmixWorkGroup
	if cfg.Processing.Strategy == config.StrategyAccel {
		return p, []pipeline.Strategy{a, host}, nil
	}
	return p, []pipeline.Strategy{host, a}, nil
}

// Reference file names by kind
func referenceFiles(cfg *config.Config) map[pipeline.Kind]string {
	return map[pipeline.Kind]string{
		pipeline.KindDarkObject: cfg.References.Dark,
		pipeline.KindDarkWhite:  cfg.References.DarkWhite,
		pipeline.KindWhite:      cfg.References.White,
	}
}

func cmdProcess(cfg *config.Config, patterns []string, logWriter io.Writer) error {
	p, strategies, err := setup(cfg, logWriter)
	if err != nil {
		return err
	}
	c := ops.NewContext(logWriter, p, strategies[0])
	if n := cfg.Processing.MaxThreads; n > 0 && n < c.MaxThreads {
		c.MaxThreads = n
	}

	seq := ops.NewOpSequence(ops.NewOpLoadMany(patterns, *format))
	seq.Append(stage.NewOpProcess(cfg.Processing.Band, *out, *snap, *doStats))
	if m, err := json.MarshalIndent(seq, "", "  "); err == nil {
		fmt.Fprintf(logWriter, "\nProcessing with strategy %s and these settings:\n%s\n", strategies[0].Name(), string(m))
	}
	return materialize(seq, c)
}

func cmdStats(cfg *config.Config, patterns []string, logWriter io.Writer) error {
	p, strategies, err := setup(cfg, logWriter)
	if err != nil {
		return err
	}
	c := ops.NewContext(logWriter, p, strategies[0])
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(patterns, *format),
		stage.NewOpCube(true),
		stage.NewOpUnmix(true),
		stage.NewOpStats(true, cfg.Processing.Band),
	)
	return materialize(seq, c)
}

// Materializes the promises of an operator, bounding concurrency by threads and memory
func materialize(op ops.Operator, c *ops.Context) error {
	promises, err := op.MakePromises(nil, c)
	if err != nil {
		return err
	}
	threads := c.MaxThreads
	if n := c.FramesInMemory(70); n < threads {
		threads = n
	}
	_, err = ops.MaterializeAll(promises, threads, true)
	return err
}

// Averages the given sensor frames into a reference of the given kind, and saves it
// to the configured reference file
func cmdReference(cfg *config.Config, args []string, logWriter io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("reference needs a kind and at least one input file")
	}
	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return err
	}
	g, err := calib.Load(cfg.Sensor.Calibration, cfg.Sensor.MatrixName)
	if err != nil {
		return err
	}

	var fileNames []string
	for _, pattern := range args[1:] {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		fileNames = append(fileNames, matches...)
	}
	if len(fileNames) == 0 {
		return fmt.Errorf("no files to load from pattern %v", args[1:])
	}

	host := pipeline.NewHostStrategy(cfg.Processing.MaxThreads)
	sums := make([]uint32, g.ActivePixels())
	for i, fileName := range fileNames {
		f, err := loadFrame(g, fileName, i, host)
		if err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "%d: Loaded %s frame with %v from %s\n", f.ID, f.DimensionsToString(), stats.NewStats(f.Raw), fileName)
		for j, v := range f.Raw {
			sums[j] += uint32(v)
		}
	}

	ref, err := frame.NewFrame(g)
	if err != nil {
		return err
	}
	ref.ID = -1 - int(kind)
	n := uint32(len(fileNames))
	for j, s := range sums {
		ref.Raw[j] = uint16((s + n/2) / n)
	}
	fileName := referenceFiles(cfg)[kind]
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%d: Writing %s reference averaged from %d frames with %v to %s\n",
		ref.ID, kind, n, stats.NewStats(ref.Raw), fileName)
	return ref.SaveForce(fileName)
}

// Loads a frame in the selected input format, cropping full sensor frames
func loadFrame(g frame.Geometry, fileName string, id int, s pipeline.Strategy) (*frame.Frame, error) {
	if *format == ops.FormatActive {
		return frame.NewFrameFromFile(g, fileName, id)
	}
	full, err := frame.ReadSensorFrameFile(g, fileName)
	if err != nil {
		return nil, err
	}
	f, err := frame.NewFrame(g)
	if err != nil {
		return nil, err
	}
	f.ID, f.FileName = id, fileName
	if err := s.Crop(full, f); err != nil {
		return nil, err
	}
	return f, nil
}

func cmdServe(cfg *config.Config, logWriter io.Writer) error {
	p, strategies, err := setup(cfg, logWriter)
	if err != nil {
		return err
	}
	s, err := rest.NewServer(p, strategies, cfg.Processing.Band, cfg.Output.SnapshotDir, logWriter)
	if err != nil {
		return err
	}
	s.ReferenceFiles = referenceFiles(cfg)
	if err := rest.MakeSandbox(*chroot, *setuid, logWriter); err != nil {
		return err
	}
	return s.Run(cfg.Server.Address)
}

func cmdCalib(cfg *config.Config, logWriter io.Writer) error {
	g, err := calib.Load(cfg.Sensor.Calibration, cfg.Sensor.MatrixName)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Calibration %s matrix %s:\n%s\n", cfg.Sensor.Calibration, cfg.Sensor.MatrixName, g.String())
	fmt.Fprintf(logWriter, "Spatial %dx%d pixels with %d bands\n", g.SpatialWidth(), g.SpatialHeight(), g.NumberOfBands())
	cond, err := calib.Condition(g.Coefficients, g.NumberOfBands())
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Correction matrix condition number %.4g\n", cond)
	return nil
}
