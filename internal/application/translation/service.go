// Package translation translates user-facing text through a bounded local
// cache. Failures never reach the caller: the original text is returned.
package translation

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxEntries   = 500
	DefaultPrefixLength = 100
	DefaultConcurrency  = 4
	AutoSource          = "auto"
)

// Config bounds the cache.
type Config struct {
	MaxEntries   int
	PrefixLength int
	Concurrency  int
}

// Service is the translation cache.
type Service struct {
	translator ports.TranslatorPort
	store      ports.TranslationStorePort
	config     Config
	logger     *logging.Logger
	tracer     *tracing.Tracer
}

// NewService creates a translation cache over store.
func NewService(translator ports.TranslatorPort, store ports.TranslationStorePort, cfg Config, logger *logging.Logger, tracer *tracing.Tracer) *Service {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.PrefixLength <= 0 {
		cfg.PrefixLength = DefaultPrefixLength
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	return &Service{translator: translator, store: store, config: cfg, logger: logger, tracer: tracer}
}

// Key returns the cache key for text. Texts sharing the first prefixLen
// runes share an entry.
func Key(text, target, source string, prefixLen int) string {
	if source == "" {
		source = AutoSource
	}
	r := []rune(text)
	if len(r) > prefixLen {
		r = r[:prefixLen]
	}
	return source + ":" + target + ":" + string(r)
}

// canonical returns the BCP 47 form of tag, or false when it does not parse.
func canonical(tag string) (string, bool) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", false
	}
	return t.String(), true
}

type request struct {
	text, target, source, key string
}

// prepare validates one translation. ok is false when text must be returned as is.
func (s *Service) prepare(ctx context.Context, text, target, source string) (request, bool) {
	if strings.TrimSpace(text) == "" {
		return request{}, false
	}
	tgt, ok := canonical(target)
	if !ok {
		s.logger.DebugContext(ctx, "translation skipped, invalid target language", "target_language", target)
		metrics.RecordTranslation(metrics.TranslationSkipped)
		return request{}, false
	}
	src := ""
	if source != "" {
		if src, ok = canonical(source); !ok {
			src = ""
		}
	}
	return request{text: text, target: tgt, source: src, key: Key(text, tgt, src, s.config.PrefixLength)}, true
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool) {
	text, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "translation cache read failed", "error", err)
		return "", false
	}
	return text, found
}

// Translate returns text in target. Blank text is returned unchanged without
// a remote call; cached translations are returned without a remote call; any
// failure returns the original text.
func (s *Service) Translate(ctx context.Context, text, target, source string) string {
	req, ok := s.prepare(ctx, text, target, source)
	if !ok {
		return text
	}
	if cached, found := s.lookup(ctx, req.key); found {
		metrics.RecordTranslation(metrics.TranslationHit)
		return cached
	}

	ctx, span := s.tracer.StartTranslationSpan(ctx, req.target, 1)
	out, ok := s.fetch(ctx, req)
	span.End()
	s.trim(ctx)
	if !ok {
		return text
	}
	return out
}

// TranslateBatch translates every text, preserving order. Only cache misses
// reach the remote service, concurrently, and texts sharing a cache key are
// fetched once.
func (s *Service) TranslateBatch(ctx context.Context, texts []string, target, source string) []string {
	out := make([]string, len(texts))
	copy(out, texts)

	type miss struct {
		indexes []int
		req     request
	}
	var misses []*miss
	byKey := make(map[string]*miss)
	for i, text := range texts {
		req, ok := s.prepare(ctx, text, target, source)
		if !ok {
			continue
		}
		if cached, found := s.lookup(ctx, req.key); found {
			metrics.RecordTranslation(metrics.TranslationHit)
			out[i] = cached
			continue
		}
		if m, ok := byKey[req.key]; ok {
			m.indexes = append(m.indexes, i)
			continue
		}
		m := &miss{indexes: []int{i}, req: req}
		byKey[req.key] = m
		misses = append(misses, m)
	}
	if len(misses) == 0 {
		return out
	}

	ctx, span := s.tracer.StartTranslationSpan(ctx, target, len(misses))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, m := range misses {
		m := m // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			translated, ok := s.fetch(gctx, m.req)
			if !ok {
				return nil
			}
			for _, i := range m.indexes {
				out[i] = translated
			}
			return nil
		})
	}
	_ = g.Wait()
	s.trim(ctx)
	return out
}

// fetch calls the remote translator and stores the result. It reports false
// when the caller should fall back to the original text.
func (s *Service) fetch(ctx context.Context, req request) (string, bool) {
	metrics.RecordTranslation(metrics.TranslationMiss)
	translated, err := s.translator.Translate(ctx, ports.TranslateRequest{
		Text:           req.text,
		TargetLanguage: req.target,
		SourceLanguage: req.source,
	})
	if err != nil {
		metrics.RecordTranslation(metrics.TranslationFallback)
		logging.LogTranslationFallback(ctx, s.logger, req.target, err)
		return "", false
	}
	if err := s.store.Put(ctx, req.key, translated); err != nil {
		s.logger.WarnContext(ctx, "failed to cache translation", "error", err)
	}
	return translated, true
}

func (s *Service) trim(ctx context.Context) {
	evicted, err := s.store.Trim(ctx, s.config.MaxEntries)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to trim translation cache", "error", err)
		return
	}
	if evicted > 0 {
		s.logger.DebugContext(ctx, "translation cache trimmed", "evicted", evicted)
	}
}

// Len returns the number of cached translations.
func (s *Service) Len(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}

// Clear removes every cached translation.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}
