package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/service/events"
)

// StageArgs is the payload of a domain_stage task. Cycle is the domain's
// restart counter at the time the task was queued.
type StageArgs struct {
	DomainID string `json:"domain_id"`
	Tries    int    `json:"tries"`
	Cycle    int    `json:"cycle"`
}

// HandleStageTask runs one verification step for a domain_stage task.
func (s *Service) HandleStageTask(ctx context.Context, task queue.Task) error {
	var args StageArgs
	if err := task.Decode(&args); err != nil {
		return err
	}
	err := s.Advance(ctx, args)
	if errors.Is(err, ErrStageConflict) {
		return nil
	}
	return err
}

// Advance performs one check for the domain's current stage. args.Tries is the
// number of attempts already made in that stage. Checks queued before the
// last Restart are dropped.
func (s *Service) Advance(ctx context.Context, args StageArgs) error {
	d, err := s.repo.GetDomainByID(ctx, args.DomainID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("domain gone, dropping stage check", "domain_id", args.DomainID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load domain %s: %w", args.DomainID, err)
	}
	if args.Cycle != d.Cycle {
		s.logger.Debug("stale stage check dropped", "domain", d.Domain, "cycle", args.Cycle, "current", d.Cycle)
		return nil
	}

	maxTries := s.policy.MaxTries(ctx, *d)
	delay := s.policy.RetryDelay(ctx, *d)
	minutes := int(delay / time.Minute)
	tries := args.Tries + 1

	s.appendLog(ctx, *d, fmt.Sprintf("Starting Check for %s", d.Domain))

	if d.Stage.Terminal() {
		s.logger.Debug("stage check on settled domain ignored", "domain", d.Domain, "stage", d.Stage)
		s.appendLog(ctx, *d, fmt.Sprintf("- Domain is already %s, nothing to check.", d.Stage.Label()))
		return nil
	}

	switch d.Stage {
	case domain.StageCheckingDNS:
		ok, err := s.dns.HasCorrectDNS(ctx, d.Domain)
		if err != nil {
			s.logger.Warn("dns probe failed", "domain", d.Domain, "tries", tries, "error", err)
			s.appendLog(ctx, *d, fmt.Sprintf("- DNS lookup failed: %v", err))
			ok = false
		}
		stageChecks.WithLabelValues(string(d.Stage), result(ok)).Inc()

		if ok {
			if err := s.transition(ctx, d, domain.StageCheckingSSL, nil, false); err != nil {
				return err
			}
			s.appendLog(ctx, *d, "- DNS propagation finished, advancing domain to next step...")
			if err := s.enqueueStage(ctx, *d, 0, time.Time{}); err != nil {
				return fmt.Errorf("enqueue ssl check for %s: %w", d.Domain, err)
			}
			if err := s.events.Do(ctx, events.EventDNSPropagationFinished, domainPayload(*d)); err != nil {
				s.logger.Warn("fire dns propagation event failed", "domain", d.Domain, "error", err)
			}
			return nil
		}

		if tries > maxTries {
			if err := s.transition(ctx, d, domain.StageFailed, nil, false); err != nil {
				return err
			}
			s.appendLog(ctx, *d, fmt.Sprintf("- DNS propagation checks tried for the max amount of times (%d times, one every %d minutes). Marking as failed.", maxTries, minutes))
			return nil
		}

		s.appendLog(ctx, *d, fmt.Sprintf("- DNS propagation not finished, retrying in %d minutes...", minutes))
		return s.retry(ctx, d, tries, delay)

	case domain.StageCheckingSSL:
		ok, err := s.certs.Valid(ctx, d.Domain)
		if err != nil {
			s.logger.Warn("certificate probe failed", "domain", d.Domain, "tries", tries, "error", err)
			s.appendLog(ctx, *d, fmt.Sprintf("- SSL check failed: %v", err))
			ok = false
		}
		stageChecks.WithLabelValues(string(d.Stage), result(ok)).Inc()

		if ok {
			secure := true
			if err := s.transition(ctx, d, domain.StageDone, &secure, false); err != nil {
				return err
			}
			s.appendLog(ctx, *d, "- Valid SSL cert found. Marking domain as done.")
			return nil
		}

		if tries > maxTries {
			if err := s.transition(ctx, d, domain.StageDoneWithoutSSL, nil, false); err != nil {
				return err
			}
			s.appendLog(ctx, *d, fmt.Sprintf("- SSL checks tried for the max amount of times (%d times, one every %d minutes). Marking as ready without SSL.", maxTries, minutes))
			return nil
		}

		s.appendLog(ctx, *d, fmt.Sprintf("- SSL Cert not found, retrying in %d minute(s)...", minutes))
		return s.retry(ctx, d, tries, delay)
	}

	return fmt.Errorf("domain %s has unknown stage %q", d.Domain, d.Stage)
}

// Restart sends a domain back to DNS verification and starts a fresh cycle.
// Checks still queued from the previous cycle become no-ops.
func (s *Service) Restart(ctx context.Context, domainID string) (*domain.Domain, error) {
	d, err := s.Get(ctx, domainID)
	if err != nil {
		return nil, err
	}
	secure := false
	if err := s.transition(ctx, d, domain.StageCheckingDNS, &secure, true); err != nil {
		return nil, err
	}
	s.appendLog(ctx, *d, fmt.Sprintf("Restarting checks for %s", d.Domain))
	if err := s.enqueueStage(ctx, *d, 0, time.Time{}); err != nil {
		return nil, fmt.Errorf("enqueue stage check for %s: %w", d.Domain, err)
	}
	return d, nil
}

func (s *Service) retry(ctx context.Context, d *domain.Domain, tries int, delay time.Duration) error {
	if err := s.enqueueStage(ctx, *d, tries, s.now().Add(delay)); err != nil {
		return fmt.Errorf("schedule stage retry for %s: %w", d.Domain, err)
	}
	return nil
}

// transition persists to and updates d in place. nextCycle starts a new
// restart cycle. A lost compare-and-swap returns ErrStageConflict.
func (s *Service) transition(ctx context.Context, d *domain.Domain, to domain.Stage, secure *bool, nextCycle bool) error {
	from := d.Stage
	err := s.repo.UpdateDomainStage(ctx, domain.StageUpdate{
		DomainID:  d.ID,
		From:      from,
		To:        to,
		Cycle:     d.Cycle,
		NextCycle: nextCycle,
		Secure:    secure,
	})
	switch {
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
		s.logger.Info("stage transition lost", "domain", d.Domain, "from", from, "to", to)
		return fmt.Errorf("%w: %s %s -> %s", ErrStageConflict, d.Domain, from, to)
	case err != nil:
		return fmt.Errorf("update stage for %s: %w", d.Domain, err)
	}

	changes := []events.Change{{Key: "stage", Old: string(from), New: string(to)}}
	if secure != nil {
		changes = append(changes, events.Change{Key: "secure", Old: d.Secure, New: *secure})
		d.Secure = *secure
	}
	if nextCycle {
		changes = append(changes, events.Change{Key: "cycle", Old: d.Cycle, New: d.Cycle + 1})
		d.Cycle++
	}
	d.Stage = to
	d.UpdatedAt = s.now()

	if from != to {
		stageTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	s.logger.Info("domain stage changed", "domain", d.Domain, "from", from, "to", to)
	if err := s.events.LogTransition(ctx, "domain", d.ID, changes, domain.InitiatorSystem); err != nil {
		s.logger.Warn("record stage transition failed", "domain", d.Domain, "error", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
