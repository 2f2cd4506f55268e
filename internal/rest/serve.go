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

// Package rest serves the processing pipeline over HTTP, for camera front ends
// which post sensor frames and fetch colour renderings.
package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hyperlight-cam/hyperlight/internal/frame"
	"github.com/hyperlight-cam/hyperlight/internal/pipeline"
	"github.com/hyperlight-cam/hyperlight/web"
)

// HTTP front end for a pipeline. Requests are serialized, so the pipeline and the
// strategies only ever see one frame at a time
type Server struct {
	// Files receiving references uploaded with save=true, by kind. Optional
	ReferenceFiles map[pipeline.Kind]string

	mu          sync.Mutex
	pipeline    *pipeline.Pipeline
	strategies  map[string]pipeline.Strategy
	names       []string
	band        int32
	snapshotDir string
	last        *frame.Frame // most recently processed frame, for snapshots
	log         io.Writer
	router      *gin.Engine
}

// Creates a server for the given pipeline. The first strategy is the default,
// band is the initially rendered band
func NewServer(p *pipeline.Pipeline, strategies []pipeline.Strategy, band int32, snapshotDir string, log io.Writer) (*Server, error) {
	if len(strategies) == 0 {
		return nil, errors.New("no processing strategy")
	}
	g := p.Geometry()
	bands := g.NumberOfBands()
	if band < 0 || band >= bands {
		return nil, fmt.Errorf("band %d of %d: %w", band, bands, frame.ErrIndexOutOfRange)
	}
	s := &Server{
		pipeline:    p,
		strategies:  map[string]pipeline.Strategy{},
		band:        band,
		snapshotDir: snapshotDir,
		log:         log,
	}
	for _, st := range strategies {
		s.strategies[st.Name()] = st
		s.names = append(s.names, st.Name())
	}

	r := gin.New()
	r.Use(gin.LoggerWithWriter(log), gin.Recovery())
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/geometry", s.getGeometry)
			v1.GET("/band", s.getBand)
			v1.PUT("/band", s.putBand)
			v1.GET("/exposure", s.getExposure)
			v1.PUT("/exposure", s.putExposure)
			v1.POST("/frame", s.postFrame)
			v1.PUT("/reference/:kind", s.putReference)
			v1.POST("/snapshot", s.postSnapshot)
		}
	}
	s.router = r
	return s, nil
}

// Returns the HTTP handler, for embedding and tests
func (s *Server) Handler() http.Handler { return s.router }

// Listens and serves on the given address until the listener fails
func (s *Server) Run(addr string) error {
	g := s.pipeline.Geometry()
	fmt.Fprintf(s.log, "Serving %d band pipeline with strategies %v on %s\n", g.NumberOfBands(), s.names, addr)
	return s.router.Run(addr)
}

// Maps pipeline errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, frame.ErrSizeMismatch), errors.Is(err, frame.ErrIndexOutOfRange),
		errors.Is(err, frame.ErrGeometry), errors.Is(err, pipeline.ErrInvalidExposure):
		return http.StatusBadRequest
	case errors.Is(err, frame.ErrFileExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

type geometryResponse struct {
	SensorWidth   int32    `json:"sensorWidth"`
	SensorHeight  int32    `json:"sensorHeight"`
	OffsetX       int32    `json:"offsetX"`
	OffsetY       int32    `json:"offsetY"`
	ActiveWidth   int32    `json:"activeWidth"`
	ActiveHeight  int32    `json:"activeHeight"`
	PatternWidth  int32    `json:"patternWidth"`
	PatternHeight int32    `json:"patternHeight"`
	SpatialWidth  int32    `json:"spatialWidth"`
	SpatialHeight int32    `json:"spatialHeight"`
	Bands         int32    `json:"bands"`
	Strategies    []string `json:"strategies"`
}

func (s *Server) getGeometry(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.pipeline.Geometry()
	c.JSON(http.StatusOK, geometryResponse{
		SensorWidth:   g.SensorWidth,
		SensorHeight:  g.SensorHeight,
		OffsetX:       g.OffsetX,
		OffsetY:       g.OffsetY,
		ActiveWidth:   g.ActiveWidth,
		ActiveHeight:  g.ActiveHeight,
		PatternWidth:  g.PatternWidth,
		PatternHeight: g.PatternHeight,
		SpatialWidth:  g.SpatialWidth(),
		SpatialHeight: g.SpatialHeight(),
		Bands:         g.NumberOfBands(),
		Strategies:    s.names,
	})
}

type bandArgs struct {
	Band *int32 `json:"band"`
	Step string `json:"step"` // next or prev, wrapping around
}

func (s *Server) getBand(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.pipeline.Geometry()
	c.JSON(http.StatusOK, gin.H{"band": s.band, "bands": g.NumberOfBands()})
}

func (s *Server) putBand(c *gin.Context) {
	var args bandArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.pipeline.Geometry()
	bands := g.NumberOfBands()
	switch {
	case args.Band != nil:
		if *args.Band < 0 || *args.Band >= bands {
			abort(c, http.StatusBadRequest, fmt.Errorf("band %d of %d: %w", *args.Band, bands, frame.ErrIndexOutOfRange))
			return
		}
		s.band = *args.Band
	case args.Step == "next":
		s.band = pipeline.NextBand(s.band, bands)
	case args.Step == "prev":
		s.band = pipeline.PrevBand(s.band, bands)
	default:
		abort(c, http.StatusBadRequest, errors.New("expected band or step next|prev"))
		return
	}
	fmt.Fprintf(s.log, "Rendering band %d of %d\n", s.band, bands)
	c.JSON(http.StatusOK, gin.H{"band": s.band, "bands": bands})
}

func (s *Server) getExposure(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := s.pipeline.Exposures()
	c.JSON(http.StatusOK, gin.H{"object": exp.Object, "white": exp.White})
}

func (s *Server) putExposure(c *gin.Context) {
	var args struct {
		Object uint32 `json:"object"`
		White  uint32 `json:"white"`
	}
	if err := c.ShouldBindJSON(&args); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := pipeline.Exposures{Object: args.Object, White: args.White}
	if err := s.pipeline.SetExposures(exp); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	fmt.Fprintf(s.log, "Exposure times object %dus white %dus\n", exp.Object, exp.White)
	c.JSON(http.StatusOK, gin.H{"object": exp.Object, "white": exp.White})
}

// Processes a full sensor frame from the request body. Query parameters: strategy,
// band, and format tiff for the colour rendering or raw for the unmixed cube
func (s *Server) postFrame(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := c.DefaultQuery("strategy", s.names[0])
	st, ok := s.strategies[name]
	if !ok {
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown strategy %q, have %v", name, s.names))
		return
	}
	band := s.band
	if b, ok := c.GetQuery("band"); ok {
		v, err := strconv.ParseInt(b, 10, 32)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		band = int32(v)
	}
	format := c.DefaultQuery("format", "tiff")
	if format != "tiff" && format != "raw" {
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown format %q", format))
		return
	}

	full, err := frame.ReadSensorFrame(s.pipeline.Geometry(), c.Request.Body)
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	res, err := s.pipeline.Process(full, band, st)
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	s.last = res.Frame

	c.Header("X-Frame-Id", strconv.Itoa(res.Frame.ID))
	c.Header("X-Band", strconv.Itoa(int(res.Band)))
	if format == "raw" {
		c.Header("Content-Type", "application/octet-stream")
		c.Status(http.StatusOK)
		err = frame.WriteSamples(c.Writer, res.Frame.Cube)
	} else {
		c.Header("Content-Type", "image/tiff")
		c.Status(http.StatusOK)
		err = res.RGB.WriteTIFF16(c.Writer)
	}
	if err != nil {
		fmt.Fprintf(s.log, "%d: Error writing response: %s\n", res.Frame.ID, err.Error())
	}
}

// Replaces a reference frame with the active area dump in the request body. With
// save=true the frame is also written to the configured reference file
func (s *Server) putReference(c *gin.Context) {
	kind, err := pipeline.ParseKind(c.Param("kind"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	save := c.Query("save") == "true"
	fileName, ok := s.ReferenceFiles[kind]
	if save && !ok {
		abort(c, http.StatusBadRequest, fmt.Errorf("no file configured for %s reference", kind))
		return
	}

	f, err := frame.NewFrameFromReader(s.pipeline.Geometry(), c.Request.Body, -1-int(kind))
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	if err := s.pipeline.SetReference(kind, f); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	saved := ""
	if save {
		if err := f.SaveForce(fileName); err != nil {
			abort(c, statusOf(err), err)
			return
		}
		fmt.Fprintf(s.log, "%d: Saved %s reference to %s\n", f.ID, kind, fileName)
		saved = fileName
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind.String(), "version": s.pipeline.References().Version(), "fileName": saved})
}

// Saves the raw active area of the most recently processed frame to the snapshot folder
func (s *Server) postSnapshot(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		abort(c, http.StatusConflict, errors.New("no frame processed yet"))
		return
	}
	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	fileName := frame.SnapshotFileName(s.snapshotDir, time.Now())
	if err := s.last.Save(fileName); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	fmt.Fprintf(s.log, "%d: Saved snapshot to %s\n", s.last.ID, fileName)
	c.JSON(http.StatusCreated, gin.H{"id": s.last.ID, "fileName": fileName})
}
