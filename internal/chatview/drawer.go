package chatview

import (
	"context"
	"errors"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/events"

	"go.uber.org/zap"
)

var (
	ErrCancelled  = errors.New("cancelled")
	ErrEmptyTitle = errors.New("title is empty")
)

// Confirmer asks the user before a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) bool
}

type ConfirmFunc func(ctx context.Context, title, message string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, title, message string) bool {
	return f(ctx, title, message)
}

type DrawerAPI interface {
	ListConversations(ctx context.Context) ([]apiclient.Conversation, error)
	RenameConversation(ctx context.Context, id uint, title string) (*apiclient.Conversation, error)
	DeleteConversation(ctx context.Context, id uint) error
	DeleteAllConversations(ctx context.Context) (int64, error)
	Logout(ctx context.Context) error
}

type DrawerStore interface {
	CachedConversations() []cache.Conversation
	SaveConversations(convs []cache.Conversation)
	DeleteConversation(id uint)
	ClearAll()
	ClearSession()
}

// Drawer is the conversation list with its rename/delete/sign-out actions.
type Drawer struct {
	api     DrawerAPI
	store   DrawerStore
	confirm Confirmer
	bus     *events.Bus
	logger  *zap.Logger
}

func NewDrawer(api DrawerAPI, store DrawerStore, confirm Confirmer, bus *events.Bus, logger *zap.Logger) *Drawer {
	return &Drawer{api: api, store: store, confirm: confirm, bus: bus, logger: logger.Named("drawer")}
}

// Load returns the server list merged into the cache, or the cached list
// alone when the server is unreachable.
func (d *Drawer) Load(ctx context.Context) ([]cache.Conversation, error) {
	convs, err := d.api.ListConversations(ctx)
	if err != nil {
		d.logger.Warn("list conversations failed", zap.Error(err))
		d.report(err, "Could not load conversations")
		return d.store.CachedConversations(), err
	}
	d.store.SaveConversations(conversationsFromWire(convs))
	return d.store.CachedConversations(), nil
}

func (d *Drawer) Rename(ctx context.Context, id uint, title string) (*cache.Conversation, error) {
	title = trimmed(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	c, err := d.api.RenameConversation(ctx, id, title)
	if err != nil {
		d.report(err, "Rename failed")
		return nil, err
	}
	updated := conversationFromWire(*c)
	d.store.SaveConversations([]cache.Conversation{updated})
	return &updated, nil
}

func (d *Drawer) Delete(ctx context.Context, id uint) error {
	if !d.confirm.Confirm(ctx, "Delete conversation", "This conversation and its messages will be removed.") {
		return ErrCancelled
	}
	if err := d.api.DeleteConversation(ctx, id); err != nil && !apiclient.IsNotFound(err) {
		d.report(err, "Delete failed")
		return err
	}
	d.store.DeleteConversation(id)
	return nil
}

func (d *Drawer) ClearAll(ctx context.Context) (int64, error) {
	if !d.confirm.Confirm(ctx, "Clear all conversations", "Every conversation will be removed.") {
		return 0, ErrCancelled
	}
	n, err := d.api.DeleteAllConversations(ctx)
	if err != nil {
		d.report(err, "Clear failed")
		return 0, err
	}
	d.store.ClearAll()
	d.bus.Info("Cleared", "All conversations were removed.")
	return n, nil
}

// SignOut always forgets the local session; a server failure is still reported.
func (d *Drawer) SignOut(ctx context.Context) error {
	if !d.confirm.Confirm(ctx, "Sign out", "You will need to log in again.") {
		return ErrCancelled
	}
	err := d.api.Logout(ctx)
	if err != nil && !apiclient.IsUnauthorized(err) {
		d.logger.Warn("server logout failed", zap.Error(err))
		d.bus.Error("Sign out", err.Error())
	} else {
		err = nil
	}
	d.store.ClearAll()
	d.store.ClearSession()
	d.bus.Publish(events.Event{Kind: events.SessionLogout})
	return err
}

func (d *Drawer) report(err error, title string) {
	if apiclient.IsUnauthorized(err) {
		d.bus.Publish(events.Event{Kind: events.SessionLogout})
		return
	}
	d.bus.Error(title, err.Error())
}
