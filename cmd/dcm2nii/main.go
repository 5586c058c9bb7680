package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"dcmvolume/internal/models"
	"dcmvolume/internal/util"
	"dcmvolume/pkg/config"
	"dcmvolume/pkg/dicomio"
	"dcmvolume/pkg/logging"
	"dcmvolume/pkg/nifti"
	"dcmvolume/pkg/reconstruction"
	"dcmvolume/pkg/series"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the DICOM slices of one series")
	framesDir := flag.String("frames", "", "Directory containing single-frame NIfTI volumes of a dynamic series")
	outputPath := flag.String("output", "output.nii", "Output NIfTI file (.nii or .nii.gz)")
	configPath := flag.String("config", "config.yaml", "Configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	gzipOutput := flag.Bool("gzip", false, "Compress the output volume")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if (*inputDir == "") == (*framesDir == "") {
		fmt.Fprintln(os.Stderr, "Exactly one of -input or -frames is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if *gzipOutput {
		cfg.Codec.Compress = true
	}

	closer := logging.Setup(cfg)
	defer func() { _ = closer.Close() }()

	if err := util.CreateDir(filepath.Dir(*outputPath)); err != nil {
		log.Fatal(err)
	}

	startTime := time.Now()
	var written string
	if *inputDir != "" {
		written, err = convertSeries(cfg, *inputDir, *outputPath)
	} else {
		written, err = stackFrames(cfg, *framesDir, *outputPath)
	}
	if err != nil {
		log.WithField("kind", errorKind(err)).Fatalf("Conversion failed: %v", err)
	}

	size := "unknown size"
	if fi, err := os.Stat(written); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	fmt.Printf("Volume saved to %s (%s) in %.2f seconds\n", written, size, time.Since(startTime).Seconds())
}

// convertSeries assembles a DICOM series and writes it as a 3D volume.
func convertSeries(cfg *config.Config, dir, output string) (string, error) {
	records, err := dicomio.ReadSeriesDir(dir, cfg.Assembly.Extensions)
	if err != nil {
		return "", err
	}

	rec := reconstruction.NewReconstructor(&reconstruction.Params{
		Tolerance:      cfg.Assembly.Tolerance,
		StrictAxisTies: cfg.Assembly.StrictAxisTies,
	})
	vol, err := rec.Assemble(records)
	if err != nil {
		return "", err
	}
	reportDiagnostics(vol.Diagnostics)

	log.WithFields(log.Fields{
		"shape":       vol.Shape,
		"orientation": nifti.Orientation(vol.Affine),
	}).Info("Assembled volume")

	descr := nifti.Description{
		"series": vol.SeriesUID,
		"orient": vol.SeriesOrientation,
		"time":   util.TimeStamp(time.Now()),
	}
	return write(cfg, vol.Data, vol.Shape[:], vol.Affine, output, descr.String())
}

// stackFrames sorts a directory of frame volumes and writes a 4D volume.
func stackFrames(cfg *config.Config, dir, output string) (string, error) {
	vol, err := series.SortSeriesDir(dir, &series.Options{
		FrameMarker:    cfg.Series.FrameMarker,
		Extensions:     cfg.Series.Extensions,
		NaNReplacement: cfg.Codec.NanReplacement,
	})
	if err != nil {
		return "", err
	}
	reportDiagnostics(vol.Diagnostics)

	log.WithFields(log.Fields{
		"images": vol.NumImages,
		"frames": vol.Shape[0],
		"dtype":  vol.DType,
	}).Info("Sorted frames")

	descr := nifti.Description{"frames": fmt.Sprint(vol.Shape[0]), "time": util.TimeStamp(time.Now())}
	return write(cfg, vol.Data, vol.Shape[:], vol.Affine, output, descr.String())
}

// write stores the volume, compressing it afterwards when configured.
func write(cfg *config.Config, data []float32, shape []int, affine models.Affine, output, descr string) (string, error) {
	plain := strings.TrimSuffix(output, nifti.GzipSuffix)
	if err := nifti.WriteVolume(data, shape, affine, plain, descr); err != nil {
		return "", err
	}
	if !cfg.Codec.Compress && !strings.HasSuffix(output, nifti.GzipSuffix) {
		return plain, nil
	}

	gz, err := nifti.Compress(plain)
	if err != nil {
		return "", err
	}
	if err := os.Remove(plain); err != nil {
		return "", fmt.Errorf("remove uncompressed output: %w", err)
	}
	return gz, nil
}

func reportDiagnostics(diags []models.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Printf("Completed with %d diagnostic(s), audit the input:\n", len(diags))
	for _, d := range diags {
		fmt.Printf("- %s\n", d)
	}
}

func errorKind(err error) string {
	switch {
	case models.IsValidation(err):
		return "validation"
	case models.IsIO(err):
		return "io"
	case errors.Is(err, models.ErrShapeMismatch):
		return "shape-mismatch"
	default:
		return "other"
	}
}
