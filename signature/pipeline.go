package signature

import (
	"context"

	"github.com/google/uuid"

	"autosig/host"
	"autosig/models"
	"autosig/utils"
)

// Pipeline handles one compose event end to end
type Pipeline struct {
	item       host.Item
	caps       host.Capabilities
	resolver   *Resolver
	dispatcher *Dispatcher
	notes      *Notifications
	log        *utils.Logger
}

// NewPipeline wires a pipeline for one compose item
func NewPipeline(item host.Item, caps host.Capabilities, resolver *Resolver, dispatcher *Dispatcher, notes *Notifications, log *utils.Logger) *Pipeline {
	if log == nil {
		log = utils.Nop()
	}
	return &Pipeline{
		item:       item,
		caps:       caps,
		resolver:   resolver,
		dispatcher: dispatcher,
		notes:      notes,
		log:        log,
	}
}

// OnMessageCompose resolves and inserts the default signature. A missing
// signature is reported to the user and is not an error.
func (p *Pipeline) OnMessageCompose(ctx context.Context) error {
	log := p.log.WithField("event", uuid.NewString())

	if p.caps.SetSignature {
		p.disableClientSignature(ctx, log)
	}

	kind := models.ComposeNew
	if p.caps.ComposeKind {
		k, err := p.item.ComposeKind(ctx)
		if err != nil {
			log.Warn("Reading compose type failed, assuming new message: %v", err)
		} else {
			kind = k
		}
	}
	log.Info("Compose event for %s", kind)

	result := p.resolver.Resolve(ctx, kind)
	log.Debug("Resolved signature from %s as %s", result.Source, result.Kind)

	if !result.Signature.IsPresent() {
		if _, err := p.notes.Success(ctx, utils.MsgNoDefaultSignature); err != nil {
			log.Warn("No-signature notification failed: %v", err)
		}
		return nil
	}

	if err := p.dispatcher.Insert(ctx, result.Signature); err != nil {
		log.Warn("Inserting signature failed (%s): %v", utils.KindOf(err), err)
		return err
	}

	if _, err := p.notes.Success(ctx, utils.MsgInsertSignatureSuccess); err != nil {
		log.Warn("Success notification failed: %v", err)
	}
	log.Info("Signature inserted from %s", result.Source)
	return nil
}

// disableClientSignature turns off the client's own signature so it does
// not end up next to ours. Failures are logged only.
func (p *Pipeline) disableClientSignature(ctx context.Context, log *utils.Logger) {
	enabled, err := p.item.IsClientSignatureEnabled(ctx)
	if err != nil {
		log.Warn("Checking client signature failed: %v", err)
		return
	}
	if !enabled {
		return
	}
	if err := p.item.DisableClientSignature(ctx); err != nil {
		log.Warn("Disabling client signature failed: %v", err)
	}
}
