package resource

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campus/portal/internal/apiclient"
	"github.com/campus/portal/internal/endpoint"
	"github.com/campus/portal/internal/infrastructure/logger"
	"github.com/campus/portal/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// State is a point-in-time view of a Store. Err is the last failure and is
// never mixed into Items.
type State struct {
	Items       []Item
	Loading     bool
	Err         error
	LastUpdated time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records skipped polling ticks on m.
func WithMetrics(m *telemetry.ClientMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithObserver registers fn to receive the state after every change.
// fn runs on the goroutine that made the change and must not call back into
// the store's mutating methods.
func WithObserver(fn func(State)) Option {
	return func(s *Store) {
		s.observers = append(s.observers, fn)
	}
}

// Store is the access object for one (role, resource) pair.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Store struct {
	client    apiclient.Doer
	role      endpoint.Role
	resource  endpoint.Resource
	routes    endpoint.Routes
	routed    bool
	logger    *zap.Logger
	metrics   *telemetry.ClientMetrics
	observers []func(State)
	now       func() time.Time

	mu          sync.RWMutex
	items       []Item
	inflight    int
	err         error
	lastUpdated time.Time

	listing atomic.Int32
	polling atomic.Bool
}

// New creates a store. A nil table selects endpoint.DefaultTable. An
// unrouted (role, resource) pair still yields a store; every call on it
// fails with a configuration error.
func New(client apiclient.Doer, table *endpoint.Table, role endpoint.Role, res endpoint.Resource, opts ...Option) *Store {
	if table == nil {
		table = endpoint.DefaultTable()
	}
	routes, ok := table.Routes(role, res)

	s := &Store{
		client:   client,
		role:     role,
		resource: res,
		routes:   routes,
		routed:   ok,
		logger:   zap.NewNop(),
		now:      time.Now,
		items:    []Item{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("role", string(role)), zap.String("resource", string(res)))
	return s
}

// Role returns the store's role.
func (s *Store) Role() endpoint.Role { return s.role }

// Resource returns the store's resource type.
func (s *Store) Resource() endpoint.Resource { return s.resource }

// path resolves the route for action. An unrouted action is a configuration
// error and an id that cannot name a member is a validation error; neither
// reaches the client.
func (s *Store) path(action endpoint.Action, id string) (string, error) {
	op := fmt.Sprintf("%s %s/%s", action, s.role, s.resource)
	if !s.routed || !s.routes.Allows(action) {
		return "", apiclient.NewError(apiclient.KindConfiguration, op, "", endpoint.NotConfigured(s.role, s.resource, action))
	}
	if action.OnMember() {
		if err := endpoint.CheckID(id); err != nil {
			return "", apiclient.NewError(apiclient.KindValidation, op, err.Error(), err)
		}
	}
	p, ok := s.routes.Path(action, id)
	if !ok {
		return "", apiclient.NewError(apiclient.KindConfiguration, op, "", endpoint.NotConfigured(s.role, s.resource, action))
	}
	return p, nil
}

// List fetches the collection and replaces the local copy wholesale. On
// failure the local copy becomes empty and the error is recorded.
func (s *Store) List(ctx context.Context, params url.Values) ([]Item, error) {
	p, err := s.path(endpoint.ActionList, "")
	if err != nil {
		return nil, err
	}

	s.listing.Add(1)
	defer s.listing.Add(-1)

	env, err := s.call(ctx, endpoint.ActionList, apiclient.Request{Method: endpoint.ActionList.Method(), Path: p, Query: params})
	if err != nil {
		s.finish(func() {
			if abandoned(ctx) {
				return
			}
			s.items = []Item{}
			s.err = err
		})
		return nil, err
	}

	items := env.Items()
	s.finish(func() {
		s.items = cloneItems(items)
		s.err = nil
		s.lastUpdated = s.now()
	})
	return cloneItems(items), nil
}

// Get fetches a single item. The local collection is not touched.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	p, err := s.path(endpoint.ActionDetail, id)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "resource.get", s.spanAttrs()...)
	defer span.End()

	resp, err := s.client.Do(ctx, apiclient.Request{Method: endpoint.ActionDetail.Method(), Path: p})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	env, err := decodeResponse(resp, p)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	item, ok := env.Item()
	if !ok {
		err := apiclient.NewError(apiclient.KindUnexpectedContentType, "GET "+p, fmt.Sprintf("expected a single %s item, got %s", s.resource, env.Shape), nil)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return item, nil
}

// Create posts item and appends the server's copy. When the server returns
// no body the submitted item is appended.
func (s *Store) Create(ctx context.Context, item Item) (Item, error) {
	p, err := s.path(endpoint.ActionCreate, "")
	if err != nil {
		return nil, err
	}

	env, err := s.call(ctx, endpoint.ActionCreate, apiclient.Request{Method: endpoint.ActionCreate.Method(), Path: p, Body: item})
	if err != nil {
		s.fail(ctx, err)
		return nil, err
	}

	created, ok := env.Item()
	if !ok {
		created = withoutUploads(item)
	}
	s.finish(func() {
		s.items = append(cloneItems(s.items), created.Clone())
		s.err = nil
		s.lastUpdated = s.now()
	})
	return created, nil
}

// Update patches the item with id and replaces the matching local item.
// When the server returns no body the patch is merged into the local copy.
func (s *Store) Update(ctx context.Context, id string, patch Item) (Item, error) {
	p, err := s.path(endpoint.ActionUpdate, id)
	if err != nil {
		return nil, err
	}

	env, err := s.call(ctx, endpoint.ActionUpdate, apiclient.Request{Method: endpoint.ActionUpdate.Method(), Path: p, Body: patch})
	if err != nil {
		s.fail(ctx, err)
		return nil, err
	}

	updated, fromServer := env.Item()
	local := withoutUploads(patch)
	s.finish(func() {
		next := cloneItems(s.items)
		for i, it := range next {
			if it.ID() != id {
				continue
			}
			if fromServer {
				next[i] = updated.Clone()
			} else {
				next[i] = it.Merge(local)
				updated = next[i].Clone()
			}
		}
		s.items = next
		s.err = nil
		s.lastUpdated = s.now()
	})
	if updated == nil {
		updated = local
	}
	return updated, nil
}

// Delete removes the item with id on the server and locally. Deleting an id
// that is not held locally leaves the collection as it was.
func (s *Store) Delete(ctx context.Context, id string) error {
	p, err := s.path(endpoint.ActionDelete, id)
	if err != nil {
		return err
	}

	if _, err := s.call(ctx, endpoint.ActionDelete, apiclient.Request{Method: endpoint.ActionDelete.Method(), Path: p}); err != nil {
		s.fail(ctx, err)
		return err
	}

	s.finish(func() {
		next := make([]Item, 0, len(s.items))
		for _, it := range s.items {
			if it.ID() != id {
				next = append(next, it)
			}
		}
		s.items = next
		s.err = nil
		s.lastUpdated = s.now()
	})
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Items returns a copy of the local collection.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Err returns the last recorded failure.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Filter returns the local items whose field contains substr, ignoring case.
func (s *Store) Filter(field, substr string) []Item {
	return FilterItems(s.Items(), field, substr)
}

// Sort returns the local items ordered by field.
func (s *Store) Sort(field string, dir Direction) []Item {
	return SortItems(s.Items(), field, dir)
}

// call marks the store loading, sends req and decodes the body.
func (s *Store) call(ctx context.Context, action endpoint.Action, req apiclient.Request) (Envelope, error) {
	ctx, span := telemetry.StartSpan(ctx, "resource."+string(action), s.spanAttrs()...)
	defer span.End()

	log := logger.FromContextOr(ctx, s.logger)

	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	s.notify()

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Debug("Resource call failed",
			zap.String("action", string(action)),
			zap.String("kind", string(apiclient.KindOf(err))),
		)
		return Envelope{}, err
	}

	env, err := decodeResponse(resp, req.Path)
	if err != nil {
		telemetry.RecordError(span, err)
		return Envelope{}, err
	}
	telemetry.SetAttributes(span, "portal.envelope", env.Shape.String())
	return env, nil
}

// finish applies a successful or failed outcome and drops the loading mark.
func (s *Store) finish(apply func()) {
	s.mu.Lock()
	apply()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
	s.notify()
}

// fail records err and leaves the collection untouched.
func (s *Store) fail(ctx context.Context, err error) {
	s.finish(func() {
		if !abandoned(ctx) {
			s.err = err
		}
	})
}

// abandoned reports whether the caller went away. A call cut short by its
// own context leaves the recorded state as it was.
func abandoned(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (s *Store) notify() {
	if len(s.observers) == 0 {
		return
	}
	state := s.Snapshot()
	for _, fn := range s.observers {
		fn(state)
	}
}

func (s *Store) snapshotLocked() State {
	return State{
		Items:       cloneItems(s.items),
		Loading:     s.inflight > 0,
		Err:         s.err,
		LastUpdated: s.lastUpdated,
	}
}

func (s *Store) spanAttrs() []telemetry.SpanOption {
	return []telemetry.SpanOption{
		telemetry.WithAttribute(telemetry.SpanAttrRole, string(s.role)),
		telemetry.WithAttribute(telemetry.SpanAttrResource, string(s.resource)),
	}
}

// withoutUploads copies it without file parts. Uploads are only meaningful
// on the wire; the local copy keeps the plain fields.
func withoutUploads(it Item) Item {
	out := make(Item, len(it))
	for k, v := range it {
		switch v.(type) {
		case *apiclient.File, *apiclient.Form:
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// decodeResponse unwraps a success body. A body that is not JSON is reported
// as an unexpected content type.
func decodeResponse(resp *apiclient.Response, path string) (Envelope, error) {
	env, err := DecodeEnvelope(resp.Body)
	if err != nil {
		return Envelope{}, apiclient.NewError(apiclient.KindUnexpectedContentType, "decode "+path, "", err)
	}
	return env, nil
}
