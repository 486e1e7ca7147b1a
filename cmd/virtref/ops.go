package main

import (
	"context"
	"log"
	"time"

	"github.com/kk-code-lab/virtref/internal/combine"
	"github.com/kk-code-lab/virtref/internal/index"
	"github.com/kk-code-lab/virtref/internal/refcache"
	"github.com/kk-code-lab/virtref/internal/refdoc"
	"github.com/kk-code-lab/virtref/internal/refs"
)

// report summarizes a mode run.
type report struct {
	Mode         string            `json:"mode"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Sources      int               `json:"sources,omitempty"`
	Arrays       int               `json:"arrays,omitempty"`
	Chunks       int               `json:"chunks,omitempty"`
	InlineChunks int               `json:"inline_chunks,omitempty"`
	ArrayShapes  map[string][]int  `json:"array_shapes,omitempty"`
	ArrayDtypes  map[string]string `json:"array_dtypes,omitempty"`
	Output       string            `json:"output,omitempty"`
	Valid        bool              `json:"valid,omitempty"`
}

func runCombine(planPath, outPath string, workers int, jsonOut bool) error {
	if planPath == "" {
		return ErrPlanRequired
	}
	p, err := loadPlan(planPath)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = p.Output
	}
	if outPath == "" {
		return ErrOutputRequired
	}
	if workers <= 0 {
		workers = p.Workers
	}

	rep := &report{Mode: "combine", StartedAt: time.Now().UTC()}

	var ix index.Indexer = &index.DocIndexer{Suffix: p.Suffix}
	if p.Cache != "" {
		cache, err := refcache.Open(p.Cache)
		if err != nil {
			return err
		}
		defer cache.Close()
		ix = &index.Cached{Indexer: ix, Cache: cache}
	}

	stores, err := index.Build(context.Background(), ix, p.Sources, workers)
	if err != nil {
		return err
	}
	merged, err := combine.Combine(stores, combine.Spec{
		ConcatDims: p.ConcatDims,
		Identical:  p.Identical,
	})
	if err != nil {
		return err
	}
	if err := refdoc.WriteFile(outPath, merged); err != nil {
		return err
	}

	fillReport(rep, merged)
	rep.Output = outPath
	rep.FinishedAt = time.Now().UTC()
	return emit(rep, jsonOut)
}

func runValidate(inPath string, jsonOut bool) error {
	if inPath == "" {
		return ErrInputRequired
	}
	rep := &report{Mode: "validate", StartedAt: time.Now().UTC()}
	store, err := refdoc.ReadFile(inPath)
	if err != nil {
		return err
	}
	if err := store.Validate(); err != nil {
		return err
	}
	fillReport(rep, store)
	rep.Valid = true
	rep.FinishedAt = time.Now().UTC()
	return emit(rep, jsonOut)
}

func runInspect(inPath string, jsonOut bool) error {
	if inPath == "" {
		return ErrInputRequired
	}
	rep := &report{Mode: "inspect", StartedAt: time.Now().UTC()}
	store, err := refdoc.ReadFile(inPath)
	if err != nil {
		return err
	}
	fillReport(rep, store)
	rep.ArrayShapes = make(map[string][]int, len(store.Arrays))
	rep.ArrayDtypes = make(map[string]string, len(store.Arrays))
	for name, m := range store.Arrays {
		rep.ArrayShapes[name] = m.Shape
		rep.ArrayDtypes[name] = m.Dtype
	}
	rep.FinishedAt = time.Now().UTC()
	return emit(rep, jsonOut)
}

func runConvert(inPath, outPath string) error {
	if inPath == "" {
		return ErrInputRequired
	}
	if outPath == "" {
		return ErrOutputRequired
	}
	store, err := refdoc.ReadFile(inPath)
	if err != nil {
		return err
	}
	return refdoc.WriteFile(outPath, store)
}

func fillReport(rep *report, store *refs.Store) {
	rep.Sources = len(store.Sources)
	rep.Arrays = len(store.Arrays)
	rep.Chunks = len(store.Chunks)
	for _, loc := range store.Chunks {
		if loc.Kind == refs.KindInline {
			rep.InlineChunks++
		}
	}
}

func emit(rep *report, jsonOut bool) error {
	if jsonOut {
		return writeJSON(rep)
	}
	log.Printf("%s sources=%d arrays=%d chunks=%d inline=%d output=%s dur_ms=%d",
		rep.Mode, rep.Sources, rep.Arrays, rep.Chunks, rep.InlineChunks, rep.Output,
		rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())
	return nil
}
