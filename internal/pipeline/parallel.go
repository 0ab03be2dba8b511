package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

// ProcessDocument processes pages concurrently, one task per page and at
// most MaxWorkers at a time, then merges the page results in page-number
// order and classifies the merged fixtures once.
//
// Zero pages is not an error and yields an empty, well-formed result. The
// only error returned is the context's, when ctx ends before all pages are done.
func (p *Pipeline) ProcessDocument(ctx context.Context, pages []Page) (*DocumentResult, error) {
	start := time.Now()
	if p == nil || p.Detector == nil {
		return nil, errors.New("pipeline not initialized")
	}

	total := len(pages)
	p.progress.OnStart(total)

	results := make([]PageResult, total)
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.MaxWorkers))
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.processPage(gctx, page)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				p.progress.OnError(done, err)
				return err
			}
			results[i] = res
			p.progress.OnProgress(done, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.progress.OnComplete()

	doc := p.merge(results)

	clsStart := time.Now()
	doc.Classification = p.Classify(ctx, doc.Fixtures, doc.References)
	doc.Processing.ClassificationNs = time.Since(clsStart).Nanoseconds()
	doc.Processing.TotalNs = time.Since(start).Nanoseconds()

	p.logger.Info("Document processed",
		"pages", total,
		"fixtures", len(doc.Fixtures),
		"groups", len(doc.Classification.Summary),
		"duration", time.Since(start))
	return doc, nil
}

// ProcessFile rasterizes the document at path and processes its pages.
func (p *Pipeline) ProcessFile(ctx context.Context, r Rasterizer, path string) (*DocumentResult, error) {
	pages, err := r.Pages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("rasterize %s: %w", path, err)
	}
	return p.ProcessDocument(ctx, pages)
}

// merge concatenates page results sorted by page number. The input slice is
// left untouched.
func (p *Pipeline) merge(results []PageResult) *DocumentResult {
	ordered := append([]PageResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	doc := &DocumentResult{
		Pages:      ordered,
		Fixtures:   []association.Fixture{},
		References: []reference.Row{},
	}
	var symbols []reference.Symbol
	for _, r := range ordered {
		doc.Fixtures = append(doc.Fixtures, r.Fixtures...)
		doc.References = append(doc.References, r.References...)
		symbols = append(symbols, r.Symbols...)
	}
	if p.cfg.Classifier.IncludeOCRSymbols {
		doc.Fixtures = append(doc.Fixtures, ocrSymbolFixtures(symbols)...)
	}
	doc.Stats = association.Validate(doc.Fixtures)
	return doc
}
