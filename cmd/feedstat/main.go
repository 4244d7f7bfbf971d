// feedstat streams batches from a shard feed and reports per-output shapes
// and value statistics. It is the quickest way to sanity-check a manifest
// and feed config before committing to a training run.
//
// Usage:
//
//	feedstat -config feed.yaml -batches 8 -hist values.png
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/shardfeed/shardfeed/feed"
)

func main() {
	configPath := flag.String("config", "", "path to the feed YAML config (required)")
	batches := flag.Int("batches", 4, "number of batches to stream")
	histPath := flag.String("hist", "", "write a histogram PNG of the first output's values")
	verbose := flag.Bool("v", false, "enable debug logging (per-shard load messages)")
	flag.Parse()

	if *configPath == "" {
		flag.Usage()
		log.Fatal("missing -config")
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := feed.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	ds, err := feed.NewDataset(cfg)
	if err != nil {
		log.Fatalf("building feed: %v", err)
	}

	for j, shape := range ds.OutputShapes() {
		fmt.Printf("output %-12s shape %v\n", cfg.Outputs[j], shape)
	}

	out, err := ds.NewBatch()
	if err != nil {
		log.Fatalf("allocating batch: %v", err)
	}
	var histValues plotter.Values
	for b := 0; b < *batches; b++ {
		if err := ds.FillBatch(out); err != nil {
			log.Fatalf("filling batch %d: %v", b, err)
		}
		for j, blb := range out {
			min, max, mean := stats(blb.Data())
			fmt.Printf("batch %3d output %-12s min %10.4f max %10.4f mean %10.4f\n",
				b, cfg.Outputs[j], min, max, mean)
		}
		if *histPath != "" {
			for _, v := range out[0].Data() {
				histValues = append(histValues, float64(v))
			}
		}
	}

	if *histPath != "" {
		if err := writeHist(histValues, cfg.Outputs[0], *histPath); err != nil {
			log.Fatalf("writing histogram: %v", err)
		}
		fmt.Printf("wrote histogram of %d values to %s\n", len(histValues), *histPath)
	}
}

func stats(values []float32) (min, max, mean float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range values {
		f := float64(v)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
		sum += f
	}
	return min, max, sum / float64(len(values))
}

func writeHist(values plotter.Values, name, path string) error {
	p := plot.New()
	p.Title.Text = "value distribution: " + name
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(values, 32)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
