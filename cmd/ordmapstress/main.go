// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ordmapstress drives an ordmap.Map through a long sliding-window
// workload of inserts and removes and checks it against a builtin map and an
// insertion-ordered key list.
package main

import (
	"errors"
	"fmt"
	"hash/maphash"
	"io"
	"math/rand"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/ordmap"
	plog "github.com/phuslu/log"
	flag "github.com/spf13/pflag"
)

type options struct {
	ops         int
	minLive     int
	maxLive     int
	collide     float64
	seed        int64
	verifyEvery int
	verbose     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, errOut io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}

	log := plog.Logger{
		Level:      plog.InfoLevel,
		TimeField:  "time",
		TimeFormat: time.RFC3339,
		Writer:     &plog.IOWriter{Writer: errOut},
	}
	if opts.verbose {
		log.Level = plog.DebugLevel
	}

	log.Info().
		Int("ops", opts.ops).
		Int("min-live", opts.minLive).
		Int("max-live", opts.maxLive).
		Float64("collide", opts.collide).
		Int64("seed", opts.seed).
		Msg("starting")

	start := time.Now()
	s, err := stress(opts, log)
	if err != nil {
		log.Error().Err(err).Msg("divergence")
		return 1
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("len", s.Len).
		Int("capacity", s.Capacity).
		Int("hash-size", s.HashSize).
		Int("max-probes", s.MaxProbes).
		Int("rehashes", s.Rehashes).
		Int("compactions", s.Compactions).
		Msg("done")
	return 0
}

func parseFlags(args []string) (options, error) {
	flagSet := flag.NewFlagSet("ordmapstress", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var opts options
	flagSet.IntVarP(&opts.ops, "ops", "n", 1000000, "number of operations")
	flagSet.IntVar(&opts.minLive, "min-live", 10, "minimum number of live keys")
	flagSet.IntVar(&opts.maxLive, "max-live", 100, "maximum number of live keys")
	flagSet.Float64Var(&opts.collide, "collide", 0.25, "fraction of keys with colliding hashes")
	flagSet.Int64Var(&opts.seed, "seed", 1, "random seed")
	flagSet.IntVar(&opts.verifyEvery, "verify-every", 1000, "operations between full comparisons")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	switch {
	case opts.ops < 0:
		return options{}, errors.New("--ops must be non-negative")
	case opts.minLive < 0 || opts.maxLive < 1 || opts.minLive > opts.maxLive:
		return options{}, fmt.Errorf("invalid live window [%d, %d]", opts.minLive, opts.maxLive)
	case opts.collide < 0 || opts.collide > 1:
		return options{}, errors.New("--collide must be within [0, 1]")
	case opts.verifyEvery < 1:
		return options{}, errors.New("--verify-every must be positive")
	}
	return opts, nil
}

// collidingHash returns a hash function which sends the given fraction of
// keys into eight hash classes whose members collide completely.
func collidingHash(fraction float64) func(key int) uint64 {
	seed := maphash.MakeSeed()
	threshold := int(fraction * 100)
	return func(key int) uint64 {
		if key%100 < threshold {
			return uint64(key%8) << 29
		}
		return maphash.Comparable(seed, key)
	}
}

func stress(opts options, log plog.Logger) (ordmap.Stats, error) {
	m := ordmap.New[int, int](0, ordmap.WithHash[int, int](collidingHash(opts.collide)))
	defer m.Close()

	rng := rand.New(rand.NewSource(opts.seed))
	expected := make(map[int]int, opts.maxLive)
	var window []int
	next := 0

	for op := 1; op <= opts.ops; op++ {
		insert := len(window) < opts.minLive ||
			(len(window) < opts.maxLive && rng.Intn(2) == 0)
		if insert {
			k, v := next, rng.Int()
			next++
			if _, replaced := m.Put(k, v); replaced {
				return m.Stats(), fmt.Errorf("op %d: put(%d) replaced a value", op, k)
			}
			expected[k] = v
			window = append(window, k)
		} else {
			j := rng.Intn(len(window))
			k := window[j]
			window = slices.Delete(window, j, j+1)
			v, removed := m.Remove(k)
			if !removed || v != expected[k] {
				return m.Stats(), fmt.Errorf("op %d: remove(%d) = %d, %t; expected %d", op, k, v, removed, expected[k])
			}
			delete(expected, k)
			if m.ContainsKey(k) {
				return m.Stats(), fmt.Errorf("op %d: %d still present after remove", op, k)
			}
		}
		if m.Len() != len(expected) {
			return m.Stats(), fmt.Errorf("op %d: len %d, expected %d", op, m.Len(), len(expected))
		}

		if op%opts.verifyEvery == 0 {
			if err := verify(m, expected, window); err != nil {
				return m.Stats(), fmt.Errorf("op %d: %w", op, err)
			}
			if op%(opts.verifyEvery*100) == 0 {
				s := m.Stats()
				log.Debug().
					Int("op", op).
					Int("len", s.Len).
					Int("slots", s.Slots).
					Int("hash-size", s.HashSize).
					Int("max-probes", s.MaxProbes).
					Msg("progress")
			}
		}
	}
	if err := verify(m, expected, window); err != nil {
		return m.Stats(), err
	}
	return m.Stats(), nil
}

// verify checks that m holds exactly the entries of expected, in the order
// given by window.
func verify(m *ordmap.Map[int, int], expected map[int]int, window []int) error {
	i := 0
	for k, v := range m.All() {
		if i >= len(window) || window[i] != k {
			return fmt.Errorf("iteration order diverged at position %d: got key %d", i, k)
		}
		if ev, ok := expected[k]; !ok || ev != v {
			return fmt.Errorf("key %d: got %d, expected %d", k, v, ev)
		}
		i++
	}
	if i != len(window) {
		return fmt.Errorf("iterated %d keys, expected %d", i, len(window))
	}
	for k, ev := range expected {
		if v, ok := m.Get(k); !ok || v != ev {
			return fmt.Errorf("get(%d) = %d, %t; expected %d", k, v, ok, ev)
		}
	}
	return nil
}
