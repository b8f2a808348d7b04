package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pixelseg/internal/logger"
	"pixelseg/internal/models"
	"pixelseg/pkg/classifier"
	"pixelseg/pkg/config"
	"pixelseg/pkg/filters"
	"pixelseg/pkg/imageio"
	"pixelseg/pkg/segmentation"
	"pixelseg/pkg/session"
	"pixelseg/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "pixelseg.yaml", "YAML configuration file (defaults are used when missing)")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	imagePath := flag.String("image", "", "Training image")
	labelsPath := flag.String("labels", "", "Label mask PNG for the training image (gray value = label id)")
	paint := flag.String("paint", "", "Brush strokes x,y,label separated by ';' painted with the configured brush size")
	featureList := flag.String("features", "", "Comma separated filters (overrides the configuration)")
	inputDir := flag.String("input-dir", "", "Directory of images to segment with the trained classifier")
	outputDir := flag.String("output-dir", "segmentation_results", "Directory for masks and previews")
	binary := flag.Bool("binary", false, "Write 0/255 foreground masks instead of label maps")
	colorOut := flag.Bool("color", false, "Also write color renderings of label maps")
	index := flag.String("index", "", "Neighbour search: linear or kdtree")
	k := flag.Int("k", 0, "Number of voting neighbours")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config, else all available)")
	saveFeatures := flag.Bool("save-features", false, "Save feature map previews of the training image")
	cropFlag := flag.String("crop", "", "Crop rectangle x1,y1,x2,y2 applied to the training and batch images")
	logJSON := flag.Bool("log-json", false, "Write JSON log lines instead of console output")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); default from output.verbose")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	if *imagePath == "" || (*labelsPath == "" && *paint == "") {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg, *featureList, *binary, *colorOut, *index, *k, *numCores, *saveFeatures, *logJSON)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := zerolog.WarnLevel
	if cfg.Output.Verbose {
		level = zerolog.InfoLevel
	}
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	}
	var appLog logger.Logger = logger.NewConsoleLogger(level)
	if cfg.Output.LogJSON {
		appLog = logger.NewZerolog(os.Stderr, level)
	}

	table, err := cfg.LabelTable()
	if err != nil {
		log.Fatalf("Invalid label table: %v", err)
	}
	indexKind, err := classifier.ParseIndex(cfg.Classifier.Index)
	if err != nil {
		log.Fatalf("Invalid index: %v", err)
	}

	var crop image.Rectangle
	if *cropFlag != "" {
		if crop, err = parseCrop(*cropFlag); err != nil {
			log.Fatalf("Invalid crop: %v", err)
		}
	}

	filters.SetWorkers(cfg.Processing.NumCores)

	fmt.Println("================================")
	fmt.Println("PIXEL CLASSIFICATION SEGMENTATION")
	fmt.Println("Filter bank features + k-nearest-neighbour voting")
	fmt.Println("================================")

	sess := session.NewSession(&session.Params{
		NumCores:         cfg.Processing.NumCores,
		Extractor:        cfg.Extractor(),
		K:                cfg.Classifier.K,
		Index:            indexKind,
		Table:            table,
		Binary:           cfg.Segmentation.Binary,
		ForegroundLabels: cfg.Foreground(),
		WriteColor:       cfg.Segmentation.WriteColor,
		Enhance: imageio.Adjustments{
			Brightness: cfg.Enhance.Brightness,
			Contrast:   cfg.Enhance.Contrast,
			Sharpness:  cfg.Enhance.Sharpness,
			Denoise:    cfg.Enhance.Denoise,
		},
		CropBatch: !crop.Empty(),
	}, appLog)

	// Load the training image and its labels
	fmt.Printf("Loading training image: %s\n", *imagePath)
	if err := sess.LoadFile(*imagePath); err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	if !crop.Empty() {
		if err := sess.Crop(crop); err != nil {
			log.Fatalf("Failed to crop image: %v", err)
		}
	}
	if *labelsPath != "" {
		mask, err := imageio.LoadLabelMask(*labelsPath)
		if err != nil {
			log.Fatalf("Failed to load label mask: %v", err)
		}
		if !crop.Empty() {
			if mask, err = mask.Crop(crop); err != nil {
				log.Fatalf("Failed to crop label mask: %v", err)
			}
		}
		if err := sess.SetMask(mask); err != nil {
			log.Fatalf("Failed to apply label mask: %v", err)
		}
	}
	if *paint != "" {
		if err := applyStrokes(sess, *paint, cfg.Brush.Size); err != nil {
			log.Fatalf("Invalid brush strokes: %v", err)
		}
	}

	if err := sess.SelectFeatures(cfg.Features.Selected); err != nil {
		log.Fatalf("Invalid feature selection: %v", err)
	}

	// Train
	fmt.Println("Training classifier...")
	report, err := sess.Train()
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	printTrainingSummary(report, sess)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	if cfg.Output.SaveFeaturePreviews {
		previewDir := filepath.Join(*outputDir, "features")
		fmt.Printf("Saving feature previews to: %s\n", previewDir)
		set := cfg.Extractor().Extract(sess.Image(), report.Features)
		if _, err := visualization.SaveFeaturePreviews(set, previewDir); err != nil {
			log.Printf("Warning: Failed to save feature previews: %v", err)
		}
		for _, st := range set.Stats() {
			fmt.Printf("- %-10s min %10.3f  max %10.3f  mean %10.3f\n", st.Name, st.Min, st.Max, st.Mean)
		}
	}

	overlayPath := session.OutputPrefix(*outputDir, *imagePath) + "_overlay.png"
	if err := saveLabelOverlay(sess, overlayPath); err != nil {
		log.Printf("Warning: Failed to save label overlay: %v", err)
	} else {
		fmt.Printf("Training labels drawn over the image: %s\n", overlayPath)
	}

	// Segment the training image itself
	startTime := time.Now()
	res, err := sess.Segment()
	if err != nil {
		log.Fatalf("Segmentation failed: %v", err)
	}
	outputs, err := session.WriteResult(res, session.OutputPrefix(*outputDir, *imagePath))
	if err != nil {
		log.Fatalf("Failed to write segmentation: %v", err)
	}
	fmt.Printf("\nTraining image segmented in %.2f seconds\n", time.Since(startTime).Seconds())
	for _, path := range outputs {
		fmt.Printf("- %s\n", path)
	}
	printSummary(res, sess)

	if ev, err := sess.Evaluate(); err == nil {
		fmt.Printf("Agreement with labeled pixels: %.2f%% (macro Dice %.3f)\n", ev.Accuracy*100, ev.MacroDice)
	}

	if *inputDir != "" {
		runBatch(sess, *inputDir, *outputDir)
	}
}

// applyFlags overrides configuration values with explicitly set flags
func applyFlags(cfg *config.Config, featureList string, binary, colorOut bool, index string, k, numCores int, saveFeatures, logJSON bool) {
	if featureList != "" {
		var selected []string
		for _, name := range strings.Split(featureList, ",") {
			if name = strings.TrimSpace(name); name != "" {
				selected = append(selected, name)
			}
		}
		cfg.Features.Selected = selected
	}
	if binary {
		cfg.Segmentation.Binary = true
	}
	if colorOut {
		cfg.Segmentation.WriteColor = true
	}
	if index != "" {
		cfg.Classifier.Index = index
	}
	if k > 0 {
		cfg.Classifier.K = k
	}
	if numCores > 0 {
		cfg.Processing.NumCores = numCores
	}
	if saveFeatures {
		cfg.Output.SaveFeaturePreviews = true
	}
	if logJSON {
		cfg.Output.LogJSON = true
	}
}

func printTrainingSummary(report *session.TrainingReport, sess *session.Session) {
	fmt.Printf("\nTraining completed in %.2f seconds\n", report.Duration.Seconds())
	fmt.Printf("Samples: %d\n", report.Samples)
	fmt.Printf("Features: %s\n", strings.Join(report.Features, ", "))
	fmt.Printf("Neighbour search: %s\n", report.Index)

	stats, err := sess.Classifier().Samples().ClassSummary()
	if err != nil {
		return
	}
	fmt.Println("\nLabeled pixels per class:")
	fmt.Println("=======================================")
	for _, st := range stats {
		fmt.Printf("%-12s %6d  mean raw %.3f (sd %.3f)\n",
			sess.Table().Name(st.Label), st.Count, st.Mean[0], st.StdDev[0])
	}
	fmt.Println()
}

func printSummary(res *segmentation.Result, sess *session.Session) {
	summary := segmentation.Summarize(res.Labels)
	for _, id := range summary.Labels() {
		fmt.Printf("- %-12s %6.2f%%\n", sess.Table().Name(id), summary.Fractions[id]*100)
	}
	fmt.Printf("Foreground: %.2f%%\n", summary.ForegroundFraction*100)
}

// runBatch segments every image in inputDir, stopping early on interrupt
func runBatch(sess *session.Session, inputDir, outputDir string) {
	paths, err := imageio.ListImages(inputDir)
	if err != nil {
		log.Fatalf("Failed to list images: %v", err)
	}
	if len(paths) == 0 {
		fmt.Printf("\nNo images found in %s\n", inputDir)
		return
	}

	items := make([]session.BatchItem, len(paths))
	for i, path := range paths {
		items[i] = session.BatchItem{Path: path, OutputPrefix: session.OutputPrefix(outputDir, path)}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("\nSegmenting %d images from %s...\n", len(items), inputDir)
	result, err := sess.Batch(ctx, items, func(completed, total int, message string) {
		fmt.Printf("\rProcessed %d/%d images (%s)", completed, total, message)
	})
	fmt.Println()
	if err != nil && result == nil {
		log.Fatalf("Batch failed: %v", err)
	}

	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Printf("- %s: FAILED: %v\n", item.Name, item.Err)
			continue
		}
		fmt.Printf("- %s: foreground %.2f%%\n", item.Name, item.Summary.ForegroundFraction*100)
	}
	fmt.Printf("\nBatch finished in %.2f seconds: %d succeeded, %d failed\n",
		result.Duration.Seconds(), result.Succeeded, result.Failed)
	if result.Cancelled {
		fmt.Printf("Interrupted with %d images left\n", len(items)-len(result.Items))
	}
	fmt.Printf("Results saved to: %s\n", outputDir)
}

// saveLabelOverlay draws the training labels over the training image
func saveLabelOverlay(sess *session.Session, path string) error {
	mask := sess.Mask()
	overlay, err := visualization.LabelOverlay(sess.Image(), mask.Labels, sess.Table())
	if err != nil {
		return err
	}
	return imageio.SavePNG(path, overlay)
}

// parseCrop parses "x1,y1,x2,y2"
func parseCrop(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("expected x1,y1,x2,y2, got %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("bad coordinate %q: %w", p, err)
		}
		v[i] = n
	}
	rect := image.Rect(v[0], v[1], v[2], v[3])
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("empty rectangle %v", rect)
	}
	return rect, nil
}

// applyStrokes paints "x,y,label" strokes separated by ';'
func applyStrokes(sess *session.Session, strokes string, size int) error {
	for _, stroke := range strings.Split(strokes, ";") {
		stroke = strings.TrimSpace(stroke)
		if stroke == "" {
			continue
		}
		parts := strings.Split(stroke, ",")
		if len(parts) != 3 {
			return fmt.Errorf("expected x,y,label, got %q", stroke)
		}
		var v [3]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("bad value %q in stroke %q", p, stroke)
			}
			v[i] = n
		}
		if v[2] < 0 || v[2] > 65535 {
			return fmt.Errorf("label %d out of range", v[2])
		}
		if err := sess.Paint(v[0], v[1], size, models.Label(v[2])); err != nil {
			return err
		}
	}
	return nil
}
