package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/terme/pkg/models"
	"github.com/mcclellann/terme/pkg/store"
)

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("client name is required")
	}
	return name, nil
}

// ensureNameFree fails with ErrDuplicateName when another client already uses name.
func ensureNameFree(ctx context.Context, s store.Storage, name string, self uuid.UUID) error {
	existing, err := s.GetClientByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// AddClient registers a new client. Names are unique regardless of case.
func (l *Ledger) AddClient(ctx context.Context, name, phone, notes string) (*models.Client, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	client := &models.Client{
		ID:        uuid.New(),
		Name:      name,
		Phone:     strings.TrimSpace(phone),
		Notes:     strings.TrimSpace(notes),
		CreatedAt: l.now(),
	}
	err = l.storage.InTx(ctx, func(s store.Storage) error {
		if err := ensureNameFree(ctx, s, name, uuid.Nil); err != nil {
			return err
		}
		if err := s.CreateClient(ctx, client); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: %q", ErrDuplicateName, name)
			}
			return fmt.Errorf("failed to store client: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.InfoContext(ctx, "Client added", "client_id", client.ID, "name", client.Name)
	return client, nil
}

// GetClient retrieves a client by its ID.
func (l *Ledger) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	client, err := l.storage.GetClient(ctx, id)
	if err != nil {
		return nil, notFound(err, "client")
	}
	return client, nil
}

// FindClient looks a client up by name, ignoring case.
func (l *Ledger) FindClient(ctx context.Context, name string) (*models.Client, error) {
	client, err := l.storage.GetClientByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, notFound(err, "client")
	}
	return client, nil
}

// UpdateClient renames a client or changes its contact details.
func (l *Ledger) UpdateClient(ctx context.Context, id uuid.UUID, name, phone, notes string) (*models.Client, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var client *models.Client
	err = l.storage.InTx(ctx, func(s store.Storage) error {
		current, err := s.GetClient(ctx, id)
		if err != nil {
			return notFound(err, "client")
		}
		if err := ensureNameFree(ctx, s, name, id); err != nil {
			return err
		}
		current.Name = name
		current.Phone = strings.TrimSpace(phone)
		current.Notes = strings.TrimSpace(notes)
		if err := s.UpdateClient(ctx, current); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: %q", ErrDuplicateName, name)
			}
			return notFound(err, "client")
		}
		client = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.InfoContext(ctx, "Client updated", "client_id", client.ID, "name", client.Name)
	return client, nil
}

// RemoveClient deletes a client that no operation references.
func (l *Ledger) RemoveClient(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.storage.InTx(ctx, func(s store.Storage) error {
		if _, err := s.GetClient(ctx, id); err != nil {
			return notFound(err, "client")
		}
		n, err := s.CountOperationsForClient(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d referencing operation(s)", ErrHasActiveOperations, n)
		}
		if err := s.DeleteClient(ctx, id); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: %v", ErrHasActiveOperations, err)
			}
			return notFound(err, "client")
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.InfoContext(ctx, "Client removed", "client_id", id)
	return nil
}

// ListClients returns every client ordered by name, ignoring case.
func (l *Ledger) ListClients(ctx context.Context) ([]*models.Client, error) {
	return l.storage.ListClients(ctx)
}
