package main

// dataset_gen.go is a tiny helper utility to generate deterministic
// key/value-size pairs for standalone load-testing of itemkernel-backed
// services (outside `go test`). Unlike a generic key-only dataset, every
// line also carries a value size drawn from a tiered distribution shaped
// around this kernel's default slab class series (geometric growth from a
// 96-byte base up to a 1 MiB cap): mostly small payloads that land in the
// first few classes, a smaller share of medium ones, and a thin tail of
// large values that force page growth — so a load tool replaying this file
// against any Store-backed service actually exercises more than one
// slab class, the way a real cache workload does.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out keys.tsv
//
// Output is TSV: "<key>\t<value-size>" per line.
//
// Flags:
//
//	-n       number of entries to generate (default 1e6)
//	-dist    key popularity distribution: "uniform" or "zipf" (default uniform)
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>=1) (default 1.0)
//	-seed    RNG seed (default current time)
//	-out     output file (default stdout)
//
// © 2025 itemkernel authors. MIT License.

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

// valueTier describes one rung of the value-size distribution: entries fall
// into it with probability weight/totalWeight, and their size is sampled
// uniformly from [min, max]. Chosen to straddle this kernel's default slab
// class boundaries (96B base, 1.25x growth, 1MiB cap) so every tier lands in
// a different run of classes rather than all clustering in the first one.
type valueTier struct {
	min, max int
	weight   int
}

var valueTiers = []valueTier{
	{min: 8, max: 120, weight: 70},        // small: fits the smallest handful of classes
	{min: 200, max: 2_000, weight: 22},    // medium: a few classes up the geometric series
	{min: 8_000, max: 65_536, weight: 7},  // large: forces several page growths
	{min: 262_144, max: 1_048_576, weight: 1}, // max-class: pins the top class's page budget
}

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of entries to generate")
		dist    = flag.String("dist", "uniform", "key popularity distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var keyGen func() uint64
	switch *dist {
	case "uniform":
		keyGen = rnd.Uint64
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, ^uint64(0))
		keyGen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	totalWeight := 0
	for _, t := range valueTiers {
		totalWeight += t.weight
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		size := sampleValueSize(rnd, totalWeight)
		fmt.Fprintf(w, "key:%d\t%d\n", keyGen(), size)
	}
}

// sampleValueSize picks a tier by weight, then a uniform size within it.
func sampleValueSize(rnd *rand.Rand, totalWeight int) int {
	roll := rnd.Intn(totalWeight)
	for _, t := range valueTiers {
		if roll < t.weight {
			if t.max == t.min {
				return t.min
			}
			return t.min + rnd.Intn(t.max-t.min+1)
		}
		roll -= t.weight
	}
	return valueTiers[len(valueTiers)-1].min
}
