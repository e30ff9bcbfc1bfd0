package session

import (
	"context"
	"errors"
)

// Binding ties one session ID to a [Store]. It satisfies the identity and
// session-flag interfaces of the verification flow.
//
// A Binding is request scoped and not safe for concurrent use.
type Binding struct {
	store *Store
	id    string

	// OnRotate is called with the new ID after RotateSessionID, typically to
	// reissue the session cookie.
	OnRotate func(newID string)
	// OnLogout is called after Logout removes the session.
	OnLogout func()
}

// Bind returns a Binding for sessionID. An empty ID yields an anonymous binding.
func (s *Store) Bind(sessionID string) *Binding {
	return &Binding{store: s, id: sessionID}
}

// ID is the current session ID, which changes after rotation.
func (b *Binding) ID() string {
	return b.id
}

// CurrentUserID returns "" when no live session is bound.
func (b *Binding) CurrentUserID(ctx context.Context) (string, error) {
	sess, err := b.store.Get(ctx, b.id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

func (b *Binding) Logout(ctx context.Context) error {
	if err := b.store.Delete(ctx, b.id); err != nil {
		return err
	}
	b.id = ""
	if b.OnLogout != nil {
		b.OnLogout()
	}
	return nil
}

func (b *Binding) SetPendingSecondFactor(ctx context.Context, pending bool) error {
	return b.store.SetPending(ctx, b.id, pending)
}

// PendingSecondFactor reports false for a missing session.
func (b *Binding) PendingSecondFactor(ctx context.Context) (bool, error) {
	sess, err := b.store.Get(ctx, b.id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.PendingSecondFactor, nil
}

func (b *Binding) RotateSessionID(ctx context.Context) error {
	next, err := b.store.Rotate(ctx, b.id)
	if err != nil {
		return err
	}
	b.id = next
	if b.OnRotate != nil {
		b.OnRotate(next)
	}
	return nil
}
