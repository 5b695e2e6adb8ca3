package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// lookupTimeout bounds one shared lookup. It does not follow any single
// caller's deadline because other callers may be waiting on the same result.
const lookupTimeout = 5 * time.Second

// ContactRepository is the contact lookup the resolver needs. Find methods
// return matches oldest first.
type ContactRepository interface {
	FindByPhones(ctx context.Context, phones []string) ([]*domain.Contact, error)
	FindByPhoneSuffix(ctx context.Context, suffix string) ([]*domain.Contact, error)
	Create(ctx context.Context, contact *domain.Contact) error
}

// Resolution is the outcome of one phone lookup.
type Resolution struct {
	Contact   *domain.Contact
	Created   bool
	Ambiguous bool
}

type Resolver struct {
	repo      ContactRepository
	phones    PhoneNormalizer
	placement domain.Placement
	logger    *zap.Logger
	metrics   *observability.Metrics
	timeout   time.Duration
	group     singleflight.Group
}

func NewResolver(
	repo ContactRepository,
	phones PhoneNormalizer,
	placement domain.Placement,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("contact repository is required")
	}
	if phones.CountryCode == "" {
		phones = NewPhoneNormalizer(DefaultCountryCode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		repo:      repo,
		phones:    phones,
		placement: placement,
		logger:    logger,
		metrics:   metrics,
		timeout:   lookupTimeout,
	}, nil
}

// Resolve finds the contact owning phone or creates an unregistered lead.
// Concurrent calls for the same number in this process share one lookup; a
// caller that gives up early does not cancel it for the others.
func (r *Resolver) Resolve(ctx context.Context, phone string) (Resolution, error) {
	canonical := r.phones.Canonical(phone)
	if canonical == "" {
		return Resolution{}, fmt.Errorf("%w: phone %q has no digits", domain.ErrValidation, phone)
	}

	ch := r.group.DoChan(canonical, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.resolve(lookupCtx, phone, canonical)
	})

	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Resolution{}, res.Err
		}
		return res.Val.(Resolution), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, phone string, canonical string) (Resolution, error) {
	logger := observability.WithContextLogger(r.logger, ctx)

	matches, err := r.repo.FindByPhones(ctx, r.phones.Variants(phone))
	if err != nil {
		return Resolution{}, &domain.PersistenceError{Op: "find contact by phone", Cause: err}
	}

	if len(matches) == 0 {
		if suffix := r.phones.Suffix(phone); suffix != "" {
			matches, err = r.repo.FindByPhoneSuffix(ctx, suffix)
			if err != nil {
				return Resolution{}, &domain.PersistenceError{Op: "find contact by phone suffix", Cause: err}
			}
		}
	}

	switch {
	case len(matches) == 1:
		r.metrics.IncIdentityResolution("matched")
		return Resolution{Contact: matches[0]}, nil
	case len(matches) > 1:
		ids := make([]string, 0, len(matches))
		for _, c := range matches {
			ids = append(ids, c.ID)
		}
		logger.Warn("phone matches more than one contact, using oldest",
			zap.String("phone", canonical),
			zap.Strings("contactIds", ids),
			zap.Error(domain.ErrIdentityAmbiguous),
		)
		r.metrics.IncIdentityResolution("ambiguous")
		return Resolution{Contact: matches[0], Ambiguous: true}, nil
	}

	contact := &domain.Contact{
		Name:           fmt.Sprintf("New lead (+%s)", canonical),
		Phone:          "+" + canonical,
		IsUnregistered: true,
	}
	if id := strings.TrimSpace(r.placement.StageID); id != "" {
		contact.StageID = &id
	}
	if id := strings.TrimSpace(r.placement.PipelineID); id != "" {
		contact.PipelineID = &id
	}

	if err := r.repo.Create(ctx, contact); err != nil {
		return Resolution{}, &domain.PersistenceError{Op: "create contact", Cause: err}
	}

	logger.Info("created unregistered lead", zap.String("contactId", contact.ID), zap.String("phone", contact.Phone))
	r.metrics.IncIdentityResolution("created")
	return Resolution{Contact: contact, Created: true}, nil
}
