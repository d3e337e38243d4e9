package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/predizer/predictx-client/internal/profile"
	"github.com/predizer/predictx-client/pkg/logger"
)

// DefaultKeyPrefix namespaces the three session keys in a shared backend.
const DefaultKeyPrefix = "predictx:"

// Session is the client-side authentication state. Empty strings and a nil
// User mean the field is absent.
type Session struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         profile.User `json:"user,omitempty"`
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// AccessExpiry returns the exp claim of the access token, when it has one.
func (s Session) AccessExpiry() (time.Time, bool) {
	if s.AccessToken == "" {
		return time.Time{}, false
	}
	claims, err := AccessClaims(s.AccessToken)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

type fieldOp uint8

const (
	opKeep fieldOp = iota
	opSet
	opReplace
	opDelete
)

// Field is one entry of a Patch. The zero value leaves the stored field as is.
type Field[T any] struct {
	op    fieldOp
	value T
}

// Set writes v. Tokens are replaced; users are merged into the stored user,
// with role and balance defaults never overriding stored values. Setting an
// empty token deletes it.
func Set[T any](v T) Field[T] { return Field[T]{op: opSet, value: v} }

// Replace writes v without merging.
func Replace[T any](v T) Field[T] { return Field[T]{op: opReplace, value: v} }

// Delete removes the field from storage.
func Delete[T any]() Field[T] { return Field[T]{op: opDelete} }

// Patch is a partial session update applied by Store.Update.
type Patch struct {
	AccessToken  Field[string]
	RefreshToken Field[string]
	User         Field[profile.User]
}

// Listener receives the resolved session after every mutation.
type Listener func(Session)

type keySet struct {
	access  string
	refresh string
	user    string
}

func (k keySet) all() []string {
	return []string{k.access, k.refresh, k.user}
}

// Store is the sole reader and writer of the persisted session.
//
// Reads and writes never fail from the caller's point of view: storage errors
// are logged, counted and degrade to "field absent". Update and Clear run
// read-merge-write under one lock, and write the three keys in a single backend
// batch, so readers never observe a torn session.
//
// Listeners are called synchronously on the mutating goroutine after the lock
// is released. There is no queueing and no delivery to other processes sharing
// the backend; they see the change on their next read.
type Store struct {
	backend Backend
	keys    keySet
	logger  *slog.Logger

	mu sync.Mutex

	subMu     sync.Mutex
	listeners []subscription
	nextSubID int
}

type subscription struct {
	id int
	fn Listener
}

// NewStore creates a session store over backend. An empty prefix selects
// DefaultKeyPrefix.
func NewStore(backend Backend, prefix string, log *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		backend: backend,
		keys: keySet{
			access:  prefix + "access_token",
			refresh: prefix + "refresh_token",
			user:    prefix + "user",
		},
		logger: log,
	}
}

// Get returns the stored session. It never fails; unreadable fields are absent.
func (s *Store) Get(ctx context.Context) Session {
	sess, err := s.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "session read degraded", slog.String("error", err.Error()))
	}
	return sess
}

// Load returns the stored session together with every storage error hit while
// reading it. The session is still usable when err is non-nil: each field that
// failed to load is simply absent.
func (s *Store) Load(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *Store) read(ctx context.Context) (Session, error) {
	var (
		sess Session
		errs []error
	)

	if v, ok, err := s.backend.Get(ctx, s.keys.access); err != nil {
		storageErrors.WithLabelValues("read").Inc()
		errs = append(errs, fmt.Errorf("read access token: %w", err))
	} else if ok {
		sess.AccessToken = v
	}

	if v, ok, err := s.backend.Get(ctx, s.keys.refresh); err != nil {
		storageErrors.WithLabelValues("read").Inc()
		errs = append(errs, fmt.Errorf("read refresh token: %w", err))
	} else if ok {
		sess.RefreshToken = v
	}

	if v, ok, err := s.backend.Get(ctx, s.keys.user); err != nil {
		storageErrors.WithLabelValues("read").Inc()
		errs = append(errs, fmt.Errorf("read user: %w", err))
	} else if ok {
		u, err := profile.Parse([]byte(v))
		if err != nil {
			storageErrors.WithLabelValues("decode").Inc()
			errs = append(errs, fmt.Errorf("read user: %w", err))
		} else {
			sess.User = u
		}
	}

	return sess, errors.Join(errs...)
}

// Update applies p and returns the resolved session. Persistence is best
// effort: on a write failure the returned session is still correct for the
// current call, but may not survive a restart.
func (s *Store) Update(ctx context.Context, p Patch) Session {
	s.mu.Lock()

	cur, err := s.read(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "session read degraded", slog.String("error", err.Error()))
	}

	next := cur
	set := make(map[string]string, 3)
	var del []string

	applyToken := func(f Field[string], key string, dst *string) {
		switch f.op {
		case opSet, opReplace:
			if f.value == "" {
				*dst = ""
				del = append(del, key)
				return
			}
			*dst = f.value
			set[key] = f.value
		case opDelete:
			*dst = ""
			del = append(del, key)
		}
	}
	applyToken(p.AccessToken, s.keys.access, &next.AccessToken)
	applyToken(p.RefreshToken, s.keys.refresh, &next.RefreshToken)

	userChanged := false
	switch p.User.op {
	case opSet:
		if merged := profile.MergeResponse(cur.User, p.User.value); merged != nil {
			next.User = merged
			userChanged = true
		}
	case opReplace:
		next.User = profile.Normalize(p.User.value)
		userChanged = true
	case opDelete:
		next.User = nil
		del = append(del, s.keys.user)
	}
	if userChanged {
		if next.User == nil {
			del = append(del, s.keys.user)
		} else if data, err := json.Marshal(next.User); err != nil {
			storageErrors.WithLabelValues("encode").Inc()
			s.logger.WarnContext(ctx, "session user not persisted", slog.String("error", err.Error()))
		} else {
			set[s.keys.user] = string(data)
		}
	}

	if len(set) > 0 || len(del) > 0 {
		if err := s.backend.Apply(ctx, set, del); err != nil {
			storageErrors.WithLabelValues("write").Inc()
			s.logger.WarnContext(ctx, "session write failed", slog.String("error", err.Error()))
		}
	}
	mutations.WithLabelValues("update").Inc()

	s.mu.Unlock()

	s.logger.DebugContext(ctx, "session updated",
		logger.Token("access_token", next.AccessToken),
		slog.Bool("has_refresh_token", next.RefreshToken != ""),
		slog.String("user_id", next.User.ID()),
	)
	s.notify(next)
	return next
}

// Clear deletes every session key. It is idempotent.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	if err := s.backend.Apply(ctx, nil, s.keys.all()); err != nil {
		storageErrors.WithLabelValues("write").Inc()
		s.logger.WarnContext(ctx, "session clear failed", slog.String("error", err.Error()))
	}
	mutations.WithLabelValues("clear").Inc()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "session cleared")
	s.notify(Session{})
}

// Subscribe registers fn for change notifications and returns a function that
// removes it. Listeners must not block.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(sess Session) {
	s.subMu.Lock()
	listeners := make([]subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.subMu.Unlock()

	for _, sub := range listeners {
		sub.fn(sess)
	}
}
