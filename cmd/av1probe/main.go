/*
DESCRIPTION
  av1probe walks an AV1 elementary stream, either raw OBUs or IVF wrapped,
  parsing every header and logging a per-frame summary.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main provides av1probe, a bitstream inspection tool built on the
// av1dec package.
package main

import (
	"bufio"
	"flag"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/ausocean/av1dec"
	"github.com/ausocean/av1dec/ivf"
)

// Logging configuration.
const (
	logPath      = "/var/log/av1probe/av1probe.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logSuppress  = true
)

// config holds the YAML configuration file contents. Flags override any
// value set here.
type config struct {
	Input          string `yaml:"input"`
	Strict         bool   `yaml:"strict"`
	LogLevel       string `yaml:"logLevel"`
	FrameSizeLimit uint64 `yaml:"frameSizeLimit"`
	OperatingPoint int    `yaml:"operatingPoint"`
}

// countingSink tallies the frames and tile bytes the decoder hands over.
type countingSink struct {
	log       logging.Logger
	frames    int
	tileBytes int
}

func (s *countingSink) SubmitFrame(f *av1dec.Frame) error {
	n := 0
	for _, t := range f.Tiles {
		n += len(t.Data)
	}
	s.frames++
	s.tileBytes += n
	s.log.Info("frame", "n", s.frames, "type", int(f.FrameHeader.FrameType),
		"width", f.FrameHeader.UpscaledWidth, "height", f.FrameHeader.Height,
		"show", f.FrameHeader.ShowFrame, "tileBytes", n,
		"timestamp", f.Props.Timestamp)
	return nil
}

func main() {
	input := flag.String("input", "", "input file: IVF or raw OBU stream")
	confPath := flag.String("conf", "", "path to YAML configuration file")
	strict := flag.Bool("strict", false, "enforce strict specification compliance")
	logLevel := flag.String("loglevel", "info", "logging verbosity: debug, info, warning or error")
	flag.Parse()

	conf := config{LogLevel: *logLevel}
	if *confPath != "" {
		b, err := os.ReadFile(*confPath)
		if err != nil {
			os.Stderr.WriteString("could not read config file: " + err.Error() + "\n")
			os.Exit(1)
		}
		if err := yaml.Unmarshal(b, &conf); err != nil {
			os.Stderr.WriteString("could not parse config file: " + err.Error() + "\n")
			os.Exit(1)
		}
	}
	if *input != "" {
		conf.Input = *input
	}
	if *strict {
		conf.Strict = true
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(verbosity(conf.LogLevel), io.MultiWriter(fileLog, os.Stderr), logSuppress)

	if conf.Input == "" {
		log.Fatal("no input file; use -input or the config file")
	}
	f, err := os.Open(conf.Input)
	if err != nil {
		log.Fatal("could not open input", "error", err.Error())
	}
	defer f.Close()

	sink := &countingSink{log: log}
	d, err := av1dec.NewDecoder(log,
		av1dec.WithSink(sink),
		av1dec.StrictCompliance(conf.Strict),
		av1dec.FrameSizeLimit(conf.FrameSizeLimit),
		av1dec.WithOperatingPoint(conf.OperatingPoint),
	)
	if err != nil {
		log.Fatal("could not create decoder", "error", err.Error())
	}

	src := bufio.NewReader(f)
	peek, err := src.Peek(4)
	if err != nil {
		log.Fatal("could not read input", "error", err.Error())
	}

	if string(peek) == "DKIF" {
		err = probeIVF(d, src, log)
	} else {
		err = probeRaw(d, src)
	}
	if err != nil {
		log.Error("parse failed", "error", err.Error())
	}

	if h := d.SequenceHeader(); h != nil {
		log.Info("stream summary", "profile", h.Profile,
			"maxWidth", h.MaxWidth, "maxHeight", h.MaxHeight,
			"layout", int(h.Layout), "frames", sink.frames,
			"tileBytes", sink.tileBytes)
	} else {
		log.Warning("no sequence header found")
	}
}

// probeIVF feeds the decoder one IVF frame record at a time, so every
// temporal unit carries its container timestamp.
func probeIVF(d *av1dec.Decoder, src io.Reader, log logging.Logger) error {
	r, err := ivf.NewReader(src)
	if err != nil {
		return err
	}
	hdr := r.Header()
	log.Info("IVF input", "fourcc", hdr.FourCC, "width", hdr.Width,
		"height", hdr.Height, "frames", hdr.FrameCount)

	for {
		data, err := r.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.Parse(data); err != nil {
			return err
		}
	}
}

// probeRaw treats the whole input as a single span of OBUs.
func probeRaw(d *av1dec.Decoder, src io.Reader) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	return d.Parse(&av1dec.Data{Data: b, Props: av1dec.DataProps{Offset: -1, Size: len(b)}})
}

// verbosity maps a config level name onto a logging level, defaulting to
// info.
func verbosity(level string) int8 {
	switch level {
	case "debug":
		return logging.Debug
	case "warning":
		return logging.Warning
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}
