// shardpack packs delimited float text into a shard file, or lists the
// arrays of an existing shard. Each input row is one training example; the
// -layout flag splits its columns into named arrays.
//
// Usage:
//
//	shardpack -in rows.csv -layout data:6,label:2 -out train0.st
//	shardpack -list train0.st
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shardfeed/shardfeed/blob"
	"github.com/shardfeed/shardfeed/shardio"
)

func main() {
	inPath := flag.String("in", "", "input CSV of float rows")
	outPath := flag.String("out", "", "output shard path")
	layout := flag.String("layout", "", "comma-separated name:width column layout, e.g. data:6,label:2")
	listPath := flag.String("list", "", "list the arrays of an existing shard and exit")
	flag.Parse()

	if *listPath != "" {
		names, err := shardio.List(*listPath)
		if err != nil {
			log.Fatalf("listing shard: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *inPath == "" || *outPath == "" || *layout == "" {
		flag.Usage()
		log.Fatal("need -in, -out and -layout (or -list)")
	}

	names, widths, err := parseLayout(*layout)
	if err != nil {
		log.Fatalf("parsing layout: %v", err)
	}
	rows, err := readRows(*inPath)
	if err != nil {
		log.Fatalf("reading %s: %v", *inPath, err)
	}
	entries, err := pack(rows, names, widths)
	if err != nil {
		log.Fatalf("packing rows: %v", err)
	}
	if err := shardio.Write(*outPath, entries); err != nil {
		log.Fatalf("writing shard: %v", err)
	}
	fmt.Printf("wrote %d rows, %d arrays to %s\n", len(rows), len(entries), *outPath)
}

// parseLayout splits "data:6,label:2" into names and column widths.
func parseLayout(layout string) ([]string, []int, error) {
	var names []string
	var widths []int
	for _, part := range strings.Split(layout, ",") {
		name, widthStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, nil, fmt.Errorf("layout entry %q is not name:width", part)
		}
		width, err := strconv.Atoi(widthStr)
		if err != nil || width <= 0 {
			return nil, nil, fmt.Errorf("layout entry %q has a bad width", part)
		}
		names = append(names, name)
		widths = append(widths, width)
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("empty layout")
	}
	return names, widths, nil
}

func readRows(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var rows [][]float32
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]float32, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", len(rows), i, err)
			}
			row[i] = float32(v)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows in %s", path)
	}
	return rows, nil
}

// pack splits each row's columns into per-array buffers per the layout and
// wraps them as [rows, width] blobs.
func pack(rows [][]float32, names []string, widths []int) ([]shardio.Entry, error) {
	total := 0
	for _, w := range widths {
		total += w
	}
	for i, row := range rows {
		if len(row) != total {
			return nil, fmt.Errorf("row %d has %d columns, layout needs %d", i, len(row), total)
		}
	}

	entries := make([]shardio.Entry, len(names))
	offset := 0
	for j, name := range names {
		flat := make([]float32, len(rows)*widths[j])
		for i, row := range rows {
			copy(flat[i*widths[j]:], row[offset:offset+widths[j]])
		}
		b, err := blob.FromFlat(flat, len(rows), widths[j])
		if err != nil {
			return nil, err
		}
		entries[j] = shardio.Entry{Name: name, Blob: b}
		offset += widths[j]
	}
	return entries, nil
}
