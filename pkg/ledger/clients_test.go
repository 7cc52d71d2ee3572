package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestAddClient(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	c, err := l.AddClient(ctx, "  Nour  ", " 0612 ", "paie le lundi")
	if err != nil {
		t.Fatalf("Failed to add client: %v", err)
	}
	if c.Name != "Nour" || c.Phone != "0612" {
		t.Errorf("Expected trimmed fields, got %q / %q", c.Name, c.Phone)
	}
	if !c.CreatedAt.Equal(clock.Now()) {
		t.Errorf("Expected created_at from clock, got %v", c.CreatedAt)
	}

	if _, err := l.AddClient(ctx, "NOUR", "", ""); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if _, err := l.AddClient(ctx, "   ", "", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for blank name, got %v", err)
	}
}

func TestUpdateClient(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	a := mustClient(t, l, "Anas")
	mustClient(t, l, "Badr")

	updated, err := l.UpdateClient(ctx, a.ID, "anas", "0700", "")
	if err != nil {
		t.Fatalf("Renaming to a case variant of its own name should succeed: %v", err)
	}
	if updated.Name != "anas" || updated.Phone != "0700" {
		t.Errorf("Unexpected client %+v", updated)
	}

	if _, err := l.UpdateClient(ctx, a.ID, "badr", "", ""); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if _, err := l.UpdateClient(ctx, uuid.New(), "Chama", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRemoveClient(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Driss")
	op := scenarioOperation(t, l, c.ID)

	if err := l.RemoveClient(ctx, c.ID); !errors.Is(err, ErrHasActiveOperations) {
		t.Fatalf("Expected ErrHasActiveOperations, got %v", err)
	}
	if err := l.DeleteOperation(ctx, op.ID); err != nil {
		t.Fatalf("Failed to delete operation: %v", err)
	}
	if err := l.RemoveClient(ctx, c.ID); err != nil {
		t.Fatalf("Failed to remove client: %v", err)
	}
	if _, err := l.GetClient(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := l.RemoveClient(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second removal, got %v", err)
	}
}

func TestListClientsByName(t *testing.T) {
	l, _, _ := newTestLedger(t)
	for _, name := range []string{"salma", "Ayoub", "hind", "Brahim"} {
		mustClient(t, l, name)
	}

	clients, err := l.ListClients(context.Background())
	if err != nil {
		t.Fatalf("Failed to list clients: %v", err)
	}
	want := []string{"Ayoub", "Brahim", "hind", "salma"}
	for i, name := range want {
		if clients[i].Name != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, clients[i].Name)
		}
	}
}

func TestFindClient(t *testing.T) {
	l, _, _ := newTestLedger(t)
	c := mustClient(t, l, "Ouafae")

	found, err := l.FindClient(context.Background(), " ouafae ")
	if err != nil {
		t.Fatalf("Failed to find client: %v", err)
	}
	if found.ID != c.ID {
		t.Errorf("Expected %s, got %s", c.ID, found.ID)
	}
	if _, err := l.FindClient(context.Background(), "Personne"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
