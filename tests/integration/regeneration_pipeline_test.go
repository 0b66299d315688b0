// Package integration exercises the regeneration pipeline end to end over
// in-memory adapters: fragments in, group index and generated mind map out.
package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/application/sagas"
	"mindloom-backend/application/services"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/aggregates"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/validators"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	"mindloom-backend/domain/versioning"
	"mindloom-backend/infrastructure/genai"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUserID  = "user-1"
	testPageURL = "https://chat.example.com/thread/42"
)

const flatMapJSON = `{"titulo_central":"Aprendizaje Automático","conceptos_clave":["modelos","datos","entrenamiento","validación","predicción"],"resumen_ejecutivo":"Resumen de los apuntes capturados."}`

func testPageKey(t *testing.T) valueobjects.PageKey {
	t.Helper()
	key, err := valueobjects.NewPageKey(testPageURL)
	require.NoError(t, err)
	return key
}

func newFragment(t *testing.T, title string) *entities.Fragment {
	t.Helper()
	content, err := valueobjects.NewCaptureContent(title, "", "captured body text")
	require.NoError(t, err)
	fragment, err := entities.NewFragment(testUserID, content, testPageURL)
	require.NoError(t, err)
	fragment.MarkEventsAsCommitted()
	return fragment
}

// pipeline bundles one fully wired saga with its in-memory adapters
type pipeline struct {
	saga         *sagas.RegenerationSaga
	fragmentRepo *memFragmentRepo
	groupRepo    *memGroupRepo
	mapRepo      *memMapRepo
	lock         *memLock
	bus          *memBus
	client       *scriptedClient
}

func newPipeline(t *testing.T, fragments []*entities.Fragment, script []scriptedResponse) *pipeline {
	t.Helper()

	logger := zap.NewNop()
	cfg := config.DefaultDomainConfig()

	fragmentRepo := &memFragmentRepo{}
	for _, fragment := range fragments {
		require.NoError(t, fragmentRepo.Save(context.Background(), fragment))
	}
	groupRepo := newMemGroupRepo()
	mapRepo := newMemMapRepo()
	lock := newMemLock()
	bus := &memBus{}
	client := &scriptedClient{script: script}

	validator := validators.NewMindMapValidator()
	generator := services.NewGenerationService(
		client,
		genai.NewDecoder(validator, logger),
		validator,
		services.NewPromptBuilder(nil),
		cfg,
		"",
		nil,
		logger,
	)
	groups := services.NewGroupService(fragmentRepo, groupRepo, bus, cfg, logger)
	maps := services.NewMapService(mapRepo, bus, cfg, logger)

	return &pipeline{
		saga:         sagas.NewRegenerationSaga(groups, generator, maps, fragmentRepo, lock, bus, cfg, logger),
		fragmentRepo: fragmentRepo,
		groupRepo:    groupRepo,
		mapRepo:      mapRepo,
		lock:         lock,
		bus:          bus,
		client:       client,
	}
}

func TestRegeneration_EndToEnd(t *testing.T) {
	pageKey := testPageKey(t)
	p := newPipeline(t, []*entities.Fragment{
		newFragment(t, "modelos entrenamiento"),
		newFragment(t, "datos validación"),
	}, []scriptedResponse{{resp: textResponse(flatMapJSON)}})

	err := p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "capture")
	require.NoError(t, err)

	// Map persisted with the validated flat payload
	m, err := p.mapRepo.GetByPageKey(context.Background(), testUserID, pageKey)
	require.NoError(t, err)
	assert.Equal(t, entities.ShapeFlat, m.Shape())
	assert.Equal(t, "Aprendizaje Automático", m.CentralTitle())

	// Group index rebuilt from the fragments
	index, err := p.groupRepo.GetIndex(context.Background(), testUserID, pageKey)
	require.NoError(t, err)
	require.NotNil(t, index)
	assert.Equal(t, 2, index.FragmentCount())
	assert.True(t, index.HasGroup("modelos"))
	assert.True(t, index.HasGroup("datos"))

	// Lease taken once and released
	assert.Equal(t, 1, p.lock.acquires)
	assert.Empty(t, p.lock.held)

	// Outcome events published
	assert.Contains(t, p.bus.types(), "groups.rebuilt")
	assert.Contains(t, p.bus.types(), "map.generated")
	assert.NotContains(t, p.bus.types(), "map.generation_failed")
}

func TestRegeneration_SecondRunOnlyRewritesChangedGroups(t *testing.T) {
	pageKey := testPageKey(t)
	p := newPipeline(t, []*entities.Fragment{
		newFragment(t, "modelos"),
		newFragment(t, "datos"),
	}, []scriptedResponse{
		{resp: textResponse(flatMapJSON)},
		{resp: textResponse(flatMapJSON)},
	})

	require.NoError(t, p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "capture"))
	firstWrites := p.groupRepo.applyCalls

	// Nothing changed, so the second rebuild must not touch group storage
	require.NoError(t, p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "manual"))
	assert.Equal(t, firstWrites, p.groupRepo.applyCalls)

	// The regenerated map version advances past the stored one
	m, err := p.mapRepo.GetByPageKey(context.Background(), testUserID, pageKey)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version())
}

func TestRegeneration_LeaseHeldElsewhere(t *testing.T) {
	pageKey := testPageKey(t)
	p := newPipeline(t, []*entities.Fragment{newFragment(t, "modelos")}, nil)

	leaseKey := fmt.Sprintf("GENERATE#%s#%s", testUserID, pageKey.String())
	p.lock.held[leaseKey] = true

	err := p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "manual")
	require.ErrorIs(t, err, pkgerrors.ErrGenerationInProgress)

	// No generation attempted, no failure published
	assert.Zero(t, p.client.calls)
	assert.NotContains(t, p.bus.types(), "map.generation_failed")

	_, err = p.mapRepo.GetByPageKey(context.Background(), testUserID, pageKey)
	assert.ErrorIs(t, err, pkgerrors.ErrMapNotFound)
}

func TestRegeneration_EmptyPageRetiresMap(t *testing.T) {
	pageKey := testPageKey(t)
	p := newPipeline(t, nil, nil)

	// Seed a stored map for the page, then regenerate with zero fragments
	seed := newPipeline(t, []*entities.Fragment{newFragment(t, "modelos")},
		[]scriptedResponse{{resp: textResponse(flatMapJSON)}})
	require.NoError(t, seed.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "capture"))
	p.mapRepo.maps = seed.mapRepo.maps

	err := p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "delete")
	require.NoError(t, err)

	assert.Zero(t, p.client.calls, "no fragments means no generation call")
	_, err = p.mapRepo.GetByPageKey(context.Background(), testUserID, pageKey)
	assert.ErrorIs(t, err, pkgerrors.ErrMapNotFound)
}

func TestRegeneration_GenerationFailurePublishesEvent(t *testing.T) {
	pageKey := testPageKey(t)
	p := newPipeline(t, []*entities.Fragment{newFragment(t, "modelos")}, []scriptedResponse{
		{err: &genai.StatusError{StatusCode: 500, Body: "internal failure"}},
	})

	err := p.saga.Run(context.Background(), testUserID, pageKey, testPageURL, "manual")
	require.Error(t, err)

	assert.Contains(t, p.bus.types(), "map.generation_failed")
	assert.Empty(t, p.lock.held, "lease must be released on failure")

	_, err = p.mapRepo.GetByPageKey(context.Background(), testUserID, pageKey)
	assert.ErrorIs(t, err, pkgerrors.ErrMapNotFound)
}

// In-memory adapters

type memFragmentRepo struct {
	mu        sync.Mutex
	fragments []*entities.Fragment
}

func (r *memFragmentRepo) Save(ctx context.Context, fragment *entities.Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.fragments {
		if existing.ID().Equals(fragment.ID()) {
			r.fragments[i] = fragment
			return nil
		}
	}
	r.fragments = append(r.fragments, fragment)
	return nil
}

func (r *memFragmentRepo) GetByID(ctx context.Context, userID string, id valueobjects.FragmentID) (*entities.Fragment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fragment := range r.fragments {
		if fragment.UserID() == userID && fragment.ID().Equals(id) {
			return fragment, nil
		}
	}
	return nil, pkgerrors.ErrFragmentNotFound
}

func (r *memFragmentRepo) GetByIDs(ctx context.Context, userID string, ids []valueobjects.FragmentID) ([]*entities.Fragment, error) {
	var found []*entities.Fragment
	for _, id := range ids {
		if fragment, err := r.GetByID(ctx, userID, id); err == nil {
			found = append(found, fragment)
		}
	}
	return found, nil
}

func (r *memFragmentRepo) GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) ([]*entities.Fragment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*entities.Fragment
	for _, fragment := range r.fragments {
		if fragment.UserID() == userID && fragment.PageKey().Equals(pageKey) {
			matched = append(matched, fragment)
		}
	}
	return matched, nil
}

func (r *memFragmentRepo) GetByUserID(ctx context.Context, userID string) ([]*entities.Fragment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*entities.Fragment
	for _, fragment := range r.fragments {
		if fragment.UserID() == userID {
			matched = append(matched, fragment)
		}
	}
	return matched, nil
}

func (r *memFragmentRepo) CountByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (int, error) {
	matched, _ := r.GetByPageKey(ctx, userID, pageKey)
	return len(matched), nil
}

func (r *memFragmentRepo) Delete(ctx context.Context, userID string, id valueobjects.FragmentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, fragment := range r.fragments {
		if fragment.UserID() == userID && fragment.ID().Equals(id) {
			r.fragments = append(r.fragments[:i], r.fragments[i+1:]...)
			return nil
		}
	}
	return pkgerrors.ErrFragmentNotFound
}

func (r *memFragmentRepo) DeleteBatch(ctx context.Context, userID string, ids []valueobjects.FragmentID) error {
	for _, id := range ids {
		_ = r.Delete(ctx, userID, id)
	}
	return nil
}

func (r *memFragmentRepo) Search(ctx context.Context, criteria ports.SearchCriteria) ([]*entities.Fragment, error) {
	return r.GetByUserID(ctx, criteria.UserID)
}

type memGroupRepo struct {
	mu         sync.Mutex
	groups     map[string][]aggregates.Group
	applyCalls int
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{groups: make(map[string][]aggregates.Group)}
}

func groupKey(userID string, pageKey valueobjects.PageKey) string {
	return userID + "|" + pageKey.String()
}

func (r *memGroupRepo) GetIndex(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*aggregates.GroupIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.groups[groupKey(userID, pageKey)]
	if !ok || len(stored) == 0 {
		return nil, nil
	}
	return aggregates.ReconstructGroupIndex(userID, pageKey, stored, stored[0].UpdatedAt)
}

func (r *memGroupRepo) ApplyDiff(ctx context.Context, userID string, pageKey valueobjects.PageKey, upserts []aggregates.Group, removedKeys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++

	key := groupKey(userID, pageKey)
	byKey := make(map[string]aggregates.Group)
	var order []string
	for _, group := range r.groups[key] {
		byKey[group.Key] = group
		order = append(order, group.Key)
	}
	for _, group := range upserts {
		if _, exists := byKey[group.Key]; !exists {
			order = append(order, group.Key)
		}
		byKey[group.Key] = group
	}
	for _, removed := range removedKeys {
		delete(byKey, removed)
	}

	var next []aggregates.Group
	for _, k := range order {
		if group, ok := byKey[k]; ok {
			next = append(next, group)
		}
	}
	r.groups[key] = next
	return nil
}

func (r *memGroupRepo) DeleteAll(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, groupKey(userID, pageKey))
	return nil
}

type memMapRepo struct {
	mu        sync.Mutex
	maps      map[string]*entities.MindMap
	revisions map[string][]*versioning.MapRevision
}

func newMemMapRepo() *memMapRepo {
	return &memMapRepo{
		maps:      make(map[string]*entities.MindMap),
		revisions: make(map[string][]*versioning.MapRevision),
	}
}

func (r *memMapRepo) Save(ctx context.Context, m *entities.MindMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maps[groupKey(m.UserID(), m.PageKey())] = m
	return nil
}

func (r *memMapRepo) GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*entities.MindMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.maps[groupKey(userID, pageKey)]
	if !ok {
		return nil, pkgerrors.ErrMapNotFound
	}
	return m, nil
}

func (r *memMapRepo) Delete(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.maps, groupKey(userID, pageKey))
	return nil
}

func (r *memMapRepo) SaveRevision(ctx context.Context, userID string, revision *versioning.MapRevision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "|" + revision.PageKey
	r.revisions[key] = append(r.revisions[key], revision)
	return nil
}

func (r *memMapRepo) GetRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, limit int) ([]*versioning.MapRevision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.revisions[groupKey(userID, pageKey)]

	// Newest first
	out := make([]*versioning.MapRevision, len(stored))
	copy(out, stored)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMapRepo) DeleteRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, versions []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := groupKey(userID, pageKey)
	drop := make(map[int]bool, len(versions))
	for _, v := range versions {
		drop[v] = true
	}
	var kept []*versioning.MapRevision
	for _, revision := range r.revisions[key] {
		if !drop[revision.Version] {
			kept = append(kept, revision)
		}
	}
	r.revisions[key] = kept
	return nil
}

type memBus struct {
	mu        sync.Mutex
	published []events.DomainEvent
}

func (b *memBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *memBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, batch...)
	return nil
}

func (b *memBus) Subscribe(eventType string, handler ports.EventHandler) error   { return nil }
func (b *memBus) Unsubscribe(eventType string, handler ports.EventHandler) error { return nil }

func (b *memBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	for _, event := range b.published {
		seen[event.GetEventType()] = true
	}
	var types []string
	for eventType := range seen {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

type memLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquires int
}

func newMemLock() *memLock {
	return &memLock{held: make(map[string]bool)}
}

func (l *memLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquires++
	return true, nil
}

func (l *memLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// scriptedClient plays back canned generation responses

type scriptedResponse struct {
	resp *genai.GenerateResponse
	err  error
}

type scriptedClient struct {
	script []scriptedResponse
	calls  int
}

func (c *scriptedClient) IsConfigured() bool { return true }

func (c *scriptedClient) GenerateContent(ctx context.Context, model string, req *genai.GenerateRequest) (*genai.GenerateResponse, error) {
	c.calls++
	if len(c.script) == 0 {
		return nil, fmt.Errorf("unscripted generation call %d to model %s", c.calls, model)
	}
	next := c.script[0]
	c.script = c.script[1:]
	return next.resp, next.err
}

func (c *scriptedClient) ListModels(ctx context.Context) ([]genai.ModelInfo, error) {
	return nil, nil
}

func textResponse(text string) *genai.GenerateResponse {
	return &genai.GenerateResponse{
		Candidates: []genai.Candidate{
			{Content: genai.Content{Role: "model", Parts: []genai.Part{{Text: text}}}},
		},
	}
}
