package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quillflow/internal/config"
	"github.com/ifuryst/quillflow/internal/models"
	"github.com/ifuryst/quillflow/internal/service/ai"
	"github.com/ifuryst/quillflow/internal/service/authority"
	"github.com/ifuryst/quillflow/internal/service/publisher"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := NewDatabase(&config.DatabaseConfig{
		Type: "sqlite",
		Path: "file:" + name + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeGenerator answers each operation from a queue; the last answer repeats.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[ai.Operation][]string
	errs      map[ai.Operation]error
	calls     []ai.Request
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: map[ai.Operation][]string{},
		errs:      map[ai.Operation]error{},
	}
}

func (g *fakeGenerator) on(op ai.Operation, responses ...string) *fakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[op] = responses
	return g
}

func (g *fakeGenerator) fail(op ai.Operation, err error) *fakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[op] = err
	return g
}

func (g *fakeGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if err := g.errs[req.Operation]; err != nil {
		return "", err
	}
	queue := g.responses[req.Operation]
	if len(queue) == 0 {
		return "", errors.New("no canned response for " + string(req.Operation))
	}
	resp := queue[0]
	if len(queue) > 1 {
		g.responses[req.Operation] = queue[1:]
	}
	return resp, nil
}

func (g *fakeGenerator) callCount(op ai.Operation) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Operation == op {
			n++
		}
	}
	return n
}

type fakePro struct {
	pro bool
}

func (p *fakePro) IsPro(context.Context) bool { return p.pro }

type fakeAuthority struct {
	mu      sync.Mutex
	verdict *authority.Verdict
	err     error
	calls   int
}

func (a *fakeAuthority) Verify(context.Context, string) (*authority.Verdict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.verdict, nil
}

func (a *fakeAuthority) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type testEnv struct {
	db        *gorm.DB
	gen       *fakeGenerator
	pro       *fakePro
	activity  *ActivityService
	settings  *SettingsService
	quota     *QuotaService
	style     *StyleService
	ideas     *IdeaService
	drafts    *DraftService
	publisher *PublisherService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop()
	pipeline := &config.PipelineConfig{
		KeywordCount:     10,
		MinKeywordLength: 4,
		SimilarCount:     3,
		SignalCount:      3,
		CorpusSize:       100,
	}

	env := &testEnv{db: db, gen: newFakeGenerator(), pro: &fakePro{}}
	env.activity = NewActivityService(db, logger)
	env.settings = NewSettingsService(db, logger, env.activity)
	env.quota = NewQuotaService(db, logger, env.settings, env.pro, env.activity)
	env.style = NewStyleService(db, logger, env.gen, env.activity, 5)
	env.ideas = NewIdeaService(pipeline, db, logger, env.gen, env.quota, env.style, env.activity)
	env.drafts = NewDraftService(pipeline, db, logger, env.gen, env.quota, env.pro, env.style, env.settings, env.activity)
	env.publisher = NewPublisherService(db, logger, publisher.NewCMSPublisher("https://blog.example"), env.activity)
	return env
}

func (e *testEnv) withStyleGuide(t *testing.T) *testEnv {
	t.Helper()
	if err := e.style.Save(context.Background(), models.StyleGuide{
		Tone:              "friendly",
		SentenceStructure: "short",
		ParagraphLength:   "two to three sentences",
		FormattingStyle:   "headings and lists",
	}); err != nil {
		t.Fatalf("save style guide: %v", err)
	}
	return e
}

func (e *testEnv) updateSettings(t *testing.T, fn func(cfg *models.AutomationConfig)) {
	t.Helper()
	ctx := context.Background()
	cfg, err := e.settings.Load(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	fn(&cfg)
	if err := e.settings.Update(ctx, cfg); err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	tx := e.db.Model(model)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
