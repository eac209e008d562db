// Command blankdetect finds the blank fillable cells of a form image and
// prints them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gridfill/internal/blank"
	"gridfill/internal/canvas"
	fimage "gridfill/internal/image"
	"gridfill/internal/logging"
	"gridfill/internal/version"
)

func main() {
	imagePath := flag.String("image", "", "Path to form image (PNG, JPEG, TIFF, BMP, WebP or PNM)")
	tolerant := flag.Bool("tolerant", false, "Widen thresholds for noisy scans")
	threshold := flag.Int("threshold", 0, "Brightness threshold 1-255 (0 = default)")
	minPixels := flag.Int("min-pixels", 0, "Minimum component size in pixels (0 = default)")
	overlay := flag.String("overlay", "", "Write the form with highlighted areas to this PNG")
	asJSON := flag.Bool("json", false, "Print areas as JSON")
	verbose := flag.Bool("v", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("blankdetect"))
		return
	}

	if *imagePath == "" {
		fmt.Println("Usage: blankdetect -image <path> [-tolerant] [-threshold 235] [-min-pixels 100] [-overlay out.png] [-json]")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := fimage.CheckFormat(*imagePath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	img, err := fimage.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	bounds := img.Bounds()

	params := blank.DefaultParams()
	if *threshold > 0 && *threshold < 256 {
		params.BrightnessThreshold = uint8(*threshold)
	}
	if *minPixels > 0 {
		params = params.WithMinPixelCount(*minPixels)
	}
	params = params.WithTolerance(*tolerant)

	areas := blank.Detect(img, params)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(areas); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode areas: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("Loaded image: %dx%d pixels\n", bounds.Dx(), bounds.Dy())
		fmt.Printf("Detection parameters:\n")
		fmt.Printf("  Threshold: %d  Min pixels: %d  Max std dev: %.1f\n",
			params.BrightnessThreshold, params.MinPixelCount, params.MaxStdDev)
		fmt.Printf("  Aspect: %.2f - %.2f  Scan step: %d  Tolerant: %v\n",
			params.MinAspectRatio, params.MaxAspectRatio, params.ScanStep, params.Tolerant)

		fmt.Printf("\nDetected %d blank areas:\n", len(areas))
		fmt.Printf("%-4s %8s %8s %8s %8s\n", "#", "X", "Y", "Width", "Height")
		for i, a := range areas {
			fmt.Printf("%-4d %8d %8d %8d %8d\n", i, a.X, a.Y, a.Width, a.Height)
		}
	}

	if *overlay != "" {
		c, err := canvas.New(img)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build overlay: %v\n", err)
			os.Exit(1)
		}
		c.HighlightRegions(areas, true)
		if err := fimage.SavePNG(*overlay, c.Display()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write overlay: %v\n", err)
			os.Exit(1)
		}
		logging.Logger().Info("overlay written", "path", *overlay)
	}
}
