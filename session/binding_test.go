package session

import (
	"context"
	"testing"
)

func TestBindingLifecycle(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "u-1")
	b := store.Bind(sess.ID)

	var rotatedTo string
	loggedOut := false
	b.OnRotate = func(id string) { rotatedTo = id }
	b.OnLogout = func() { loggedOut = true }

	if uid, err := b.CurrentUserID(ctx); err != nil || uid != "u-1" {
		t.Fatalf("CurrentUserID = %q, %v", uid, err)
	}
	if err := b.SetPendingSecondFactor(ctx, true); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	if pending, _ := b.PendingSecondFactor(ctx); !pending {
		t.Fatal("expected pending")
	}

	if err := b.RotateSessionID(ctx); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotatedTo == "" || rotatedTo != b.ID() || rotatedTo == sess.ID {
		t.Fatalf("rotation callback got %q, binding has %q", rotatedTo, b.ID())
	}

	if err := b.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !loggedOut {
		t.Fatal("expected logout callback")
	}
	if uid, _ := b.CurrentUserID(ctx); uid != "" {
		t.Fatalf("expected anonymous after logout, got %q", uid)
	}
}

func TestAnonymousBinding(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	b := store.Bind("")

	uid, err := b.CurrentUserID(context.Background())
	if err != nil || uid != "" {
		t.Fatalf("expected anonymous, got %q %v", uid, err)
	}
	if pending, err := b.PendingSecondFactor(context.Background()); err != nil || pending {
		t.Fatalf("expected not pending, got %v %v", pending, err)
	}
}
