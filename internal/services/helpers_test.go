package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// ----- Fakes -----

type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*domain.User
	err   error
}

func (d *fakeDirectory) ResolveUser(_ context.Context, id string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeEvaluator struct {
	mu sync.Mutex

	// totals maps description text to the total score returned; default 0.8.
	totals  map[string]float64
	evalErr error
	evals   int

	summary     *domain.SessionConclusion
	sumErr      error
	summaries   int
	lastAgg     domain.SessionAggregates
	lastSummary []string
}

func (e *fakeEvaluator) EvaluateDescription(_ context.Context, patientText, _ string, _ []string) (*domain.EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evals++
	if e.evalErr != nil {
		return nil, e.evalErr
	}
	total := 0.8
	if v, ok := e.totals[patientText]; ok {
		total = v
	}
	return &domain.EvaluationResult{
		OmissionRate:       0.1,
		CommissionRate:     0.2,
		AccuracyRate:       0.9,
		CoherenceScore:     0.7,
		FluencyScore:       0.6,
		TotalScore:         total,
		OmittedDetails:     []string{},
		OmittedKeywords:    []string{},
		CommissionElements: []string{},
		CorrectElements:    []string{"perro"},
		Conclusion:         "conclusión de " + patientText,
	}, nil
}

func (e *fakeEvaluator) SummarizeSession(_ context.Context, agg domain.SessionAggregates, conclusions []string) (*domain.SessionConclusion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summaries++
	e.lastAgg = agg
	e.lastSummary = conclusions
	if e.sumErr != nil {
		return nil, e.sumErr
	}
	if e.summary != nil {
		return e.summary, nil
	}
	return &domain.SessionConclusion{TechnicalConclusion: "técnica", PlainConclusion: "sencilla"}, nil
}

func (e *fakeEvaluator) counts() (evals, summaries int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals, e.summaries
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) byEvent(event string) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, m := range n.sent {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// inlineEffects runs side effects synchronously and keeps their errors.
type inlineEffects struct {
	mu   sync.Mutex
	errs []error
}

func (q *inlineEffects) Enqueue(e SideEffect) {
	err := e.Run(context.Background())
	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		q.errs = append(q.errs, err)
	}
}

type fakeObjectStore struct {
	mu       sync.Mutex
	uploads  int
	deleted  []string
	err      error
	uploaded time.Time
}

func (s *fakeObjectStore) Upload(_ context.Context, data []byte, contentType, name string) (*domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.uploads++
	id := fmt.Sprintf("obj-%d", s.uploads)
	return &domain.StoredObject{
		SecureURL: "https://cdn.test/" + id,
		AssetID:   "asset-" + id,
		PublicID:  id,
		Format:    "png",
		CreatedAt: s.uploaded,
	}, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, publicID)
	return nil
}

// ----- Harness -----

type harness struct {
	db      *gorm.DB
	dir     *fakeDirectory
	eval    *fakeEvaluator
	notes   *recordingNotifier
	effects *inlineEffects
	store   *fakeObjectStore
	clock   time.Time

	sessions     *SessionService
	descriptions *DescriptionService
	images       *ImageService
	groundTruths *GroundTruthService
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db: newServiceDB(t),
		dir: &fakeDirectory{users: map[string]*domain.User{
			"admin1": {ID: "admin1", Role: domain.RoleAdministrator, DisplayName: "Admin"},
			"cg1":    {ID: "cg1", Role: domain.RoleCaregiver, DisplayName: "Carmen", PatientIDs: []string{"p1", "p2"}},
			"cg2":    {ID: "cg2", Role: domain.RoleCaregiver, DisplayName: "Luis"},
			"p1":     {ID: "p1", Role: domain.RolePatient, DisplayName: "Pilar", ContactEmail: "pilar@example.com", ClinicianID: "doc1"},
			"p2":     {ID: "p2", Role: domain.RolePatient, DisplayName: "Pedro"},
			"doc1":   {ID: "doc1", Role: domain.RoleClinician, DisplayName: "Dra. Ruiz", ContactEmail: "ruiz@example.com"},
		}},
		eval:    &fakeEvaluator{totals: map[string]float64{}},
		notes:   &recordingNotifier{},
		effects: &inlineEffects{},
		store:   &fakeObjectStore{},
		clock:   time.Now().UTC(),
	}
	store := repo.Store{}
	gate := &Gate{Directory: h.dir}
	window := TimeWindow{Window: DefaultEditWindow, Now: func() time.Time { return h.clock }}

	h.sessions = NewSessionService(h.db, store, store, gate, h.effects, h.notes)
	h.descriptions = &DescriptionService{
		DB:           h.db,
		Descriptions: store,
		Images:       store,
		GroundTruths: store,
		Sessions:     h.sessions,
		Gate:         gate,
		Evaluator:    h.eval,
		Conclusions:  &ConclusionGenerator{Evaluator: h.eval},
		Locker:       NewLocalLocker(),
		Effects:      h.effects,
		Notifier:     h.notes,
		Idempotency:  store,
	}
	h.images = &ImageService{
		DB:           h.db,
		Images:       store,
		Descriptions: store,
		Sessions:     h.sessions,
		Gate:         gate,
		Store:        h.store,
		Effects:      h.effects,
		Window:       window,
	}
	h.groundTruths = &GroundTruthService{
		DB:           h.db,
		GroundTruths: store,
		Images:       store,
		Descriptions: store,
		Gate:         gate,
		Window:       window,
	}
	return h
}

// image stores an unassigned image owned by caregiverID.
func (h *harness) image(t *testing.T, caregiverID string) *domain.Image {
	t.Helper()
	img, err := repo.CreateImage(context.Background(), h.db, repo.NewImage{
		CaregiverID: caregiverID,
		URL:         "https://cdn.test/" + uuid.NewString(),
		UploadedAt:  h.clock,
	})
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	return img
}

// describedImage stores an image with a ground truth.
func (h *harness) describedImage(t *testing.T, caregiverID string) *domain.Image {
	t.Helper()
	img := h.image(t, caregiverID)
	if _, err := repo.CreateGroundTruth(context.Background(), h.db, img.ID,
		"Un perro juega en el parque con una pelota roja", []string{"perro", "pelota"}, []string{"¿Qué animal ves?"}); err != nil {
		t.Fatalf("create ground truth: %v", err)
	}
	return img
}

// fullSession creates a session for p1 by cg1 with three images that have
// ground truths.
func (h *harness) fullSession(t *testing.T) (*domain.Session, []*domain.Image) {
	t.Helper()
	imgs := []*domain.Image{h.describedImage(t, "cg1"), h.describedImage(t, "cg1"), h.describedImage(t, "cg1")}
	sess, err := h.sessions.Create(context.Background(), CreateSessionInput{
		ActorID:  "cg1",
		ImageIDs: []string{imgs[0].ID, imgs[1].ID, imgs[2].ID},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess, imgs
}

func (h *harness) submit(t *testing.T, imageID, text string) *SubmitResult {
	t.Helper()
	res, err := h.descriptions.Submit(context.Background(), SubmitDescriptionInput{
		PatientID: "p1",
		ImageID:   imageID,
		Text:      text,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", imageID, err)
	}
	return res
}

func wantErr(t *testing.T, got error, want *Error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("err = %v; want %v", got, want)
	}
}

func wantKind(t *testing.T, got error, kind Kind) {
	t.Helper()
	if k := KindOf(got); k != kind {
		t.Fatalf("kind = %q (err %v); want %q", k, got, kind)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
