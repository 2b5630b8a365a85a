package dnsgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/dnsgate/internal/stores"
	"github.com/MrEthical07/dnsgate/upstream"
)

// ListSlots returns the caller's upstream-credential slots with credential
// values redacted.
func (e *Engine) ListSlots(ctx context.Context, id *Identity) ([]SlotView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return nil, ErrUnauthorized
	}
	slots, err := e.accounts.List(ctx, id.Username)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotView{
			ID:    s.ID,
			Name:  s.Name,
			Kind:  slotKind(s.Kind),
			Token: redact(s.Token),
			Email: s.Email,
		})
	}
	return out, nil
}

// AddSlot stores a new credential at one past the caller's highest index.
// When an upstream client is configured the credential is checked first.
func (e *Engine) AddSlot(ctx context.Context, id *Identity, in SlotInput) (*SlotView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return nil, ErrUnauthorized
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Token = strings.TrimSpace(in.Token)
	in.Kind = slotKind(in.Kind)
	if in.Name == "" || in.Token == "" {
		return nil, fmt.Errorf("%w: name and token required", ErrValidation)
	}
	if in.Kind != stores.KindAPIToken && in.Kind != stores.KindGlobalKey {
		return nil, fmt.Errorf("%w: unknown credential kind %q", ErrValidation, in.Kind)
	}
	if in.Kind == stores.KindGlobalKey && strings.TrimSpace(in.Email) == "" {
		return nil, fmt.Errorf("%w: email required for global keys", ErrValidation)
	}

	if e.upstream != nil {
		err := e.upstream.Verify(ctx, upstream.Credential{Token: in.Token, Kind: in.Kind, Email: in.Email})
		switch {
		case errors.Is(err, upstream.ErrBadCredential):
			return nil, ErrUpstreamCredentialRejected
		case err != nil:
			e.metricInc(MetricUpstreamFailure)
			return nil, ErrUpstreamUnavailable
		}
	}

	slot, err := e.accounts.Add(ctx, id.Username, stores.Slot{
		Name:  in.Name,
		Token: in.Token,
		Kind:  in.Kind,
		Email: strings.TrimSpace(in.Email),
	})
	if err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricSlotCreated)
	e.emitAudit(ctx, auditEventSlotCreated, true, id.Username, id.Role, nil, func() map[string]string {
		return map[string]string{"slot": itoa(slot.ID), "kind": slot.Kind}
	})
	return &SlotView{ID: slot.ID, Name: slot.Name, Kind: slot.Kind, Token: redact(slot.Token), Email: slot.Email}, nil
}

// DeleteSlot removes the caller's slot at index.
func (e *Engine) DeleteSlot(ctx context.Context, id *Identity, index int) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if id == nil || id.Username == "" {
		return ErrUnauthorized
	}
	if index < 0 {
		return fmt.Errorf("%w: index must be non-negative", ErrValidation)
	}
	ok, err := e.accounts.Delete(ctx, id.Username, index)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return ErrNotFound
	}
	e.metricInc(MetricSlotDeleted)
	e.emitAudit(ctx, auditEventSlotDeleted, true, id.Username, id.Role, nil, func() map[string]string {
		return map[string]string{"slot": itoa(index)}
	})
	return nil
}

// migrateLegacySlots copies the deployment-level credentials into the
// admin's slot list the first time the admin logs in without any slots.
// Failures are logged; login goes on.
func (e *Engine) migrateLegacySlots(ctx context.Context, username string) {
	legacy := e.config.Legacy.Accounts
	if len(legacy) == 0 {
		return
	}
	existing, err := e.accounts.List(ctx, username)
	if err != nil {
		e.logger.Warn(ctx, "legacy slot migration skipped", "username", username, "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	slots := make([]stores.Slot, 0, len(legacy))
	for i, a := range legacy {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("Account %d", i+1)
		}
		slots = append(slots, stores.Slot{
			ID:    i,
			Name:  name,
			Token: a.Token,
			Kind:  slotKind(a.Kind),
			Email: a.Email,
		})
	}
	if err := e.accounts.Replace(ctx, username, slots); err != nil {
		e.logger.Warn(ctx, "legacy slot migration failed", "username", username, "error", err)
		return
	}

	e.metricInc(MetricSlotsMigrated)
	e.emitAudit(ctx, auditEventSlotsMigrated, true, username, RoleAdmin, nil, func() map[string]string {
		return map[string]string{"count": itoa(len(slots))}
	})
}

func (e *Engine) accountSummaries(ctx context.Context, username, role string) ([]AccountSummary, error) {
	slots, err := e.accounts.List(ctx, username)
	if err != nil {
		return []AccountSummary{}, err
	}
	out := make([]AccountSummary, 0, len(slots))
	for _, s := range slots {
		out = append(out, AccountSummary{ID: s.ID, Name: s.Name})
	}
	if len(out) == 0 && username == AdminUsername && role == RoleAdmin {
		for i, a := range e.config.Legacy.Accounts {
			name := a.Name
			if name == "" {
				name = fmt.Sprintf("Account %d", i+1)
			}
			out = append(out, AccountSummary{ID: i, Name: name})
		}
	}
	return out, nil
}

func slotKind(kind string) string {
	if kind == "" {
		return stores.KindAPIToken
	}
	return kind
}

func redact(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return "****" + token[len(token)-4:]
}
