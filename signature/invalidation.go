package signature

import (
	"context"

	"autosig/storage"
	"autosig/utils"
)

// Invalidator purges cached signatures when an administrative action
// (a language or employee switch) has raised the clear-storage flag.
type Invalidator struct {
	settings *storage.Settings
	store    *storage.Store
	log      *utils.Logger
}

// NewInvalidator creates an Invalidator
func NewInvalidator(settings *storage.Settings, store *storage.Store, log *utils.Logger) *Invalidator {
	if log == nil {
		log = utils.Nop()
	}
	return &Invalidator{settings: settings, store: store, log: log}
}

// CheckAndClear purges both signature keys and then clears the flag.
// If the purge succeeds but clearing fails, the flag stays set and the
// next call purges again.
func (i *Invalidator) CheckAndClear(ctx context.Context) (bool, error) {
	set, err := i.settings.IsSet(ctx, ClearStorageFlag)
	if err != nil {
		return false, err
	}
	if !set {
		return false, nil
	}

	if err := i.store.RemoveMany(ctx, []string{NewSignatureKey, ReplySignatureKey}); err != nil {
		return false, err
	}
	if err := i.settings.Remove(ctx, ClearStorageFlag); err != nil {
		return true, err
	}

	i.log.Info("Cleared stored signatures on request")
	return true, nil
}
