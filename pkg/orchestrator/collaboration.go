package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/finroute/pkg/answer"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/responder"
)

// Collaboration outcomes recorded in metrics.
const (
	outcomeSynthesized = "synthesized"
	outcomeUnmerged    = "unmerged"
	outcomeUnavailable = "unavailable"
)

// Collaborate asks every responder in ids, then merges their answers with the
// synthesizer. An empty synthesizerID uses the configured synthesizer. Inactive,
// unknown and repeated ids are skipped; a failing responder is left out without
// aborting the others. If synthesis fails the contributions are returned unmerged.
func (o *Orchestrator) Collaborate(ctx context.Context, query string, ids []string, synthesizerID string, opts ProcessOptions) *Result {
	start := o.now()
	res := &Result{
		RequestID: uuid.NewString(),
		Mode:      ModeCollaboration,
		Language:  responder.NormalizeLanguage(opts.Language, o.language),
	}
	defer func() { res.Duration = o.now().Sub(start) }()

	analysis := o.router.Classify(query)
	res.IntentAnalysis = analysis
	res.Jurisdiction = opts.Jurisdiction
	if res.Jurisdiction == "" {
		res.Jurisdiction = analysis.Jurisdiction
	}

	participants := o.participants(ids)
	if len(participants) == 0 {
		o.logf("[collab] %s: none of %v is active", res.RequestID, ids)
		o.metrics.IncCollaboration(outcomeUnavailable)
		return o.degrade(res, fallback.KeyNoResponders, ErrNoResponderAvailable)
	}

	// Participants get the raw query; the jurisdiction stays on the result.
	q := responder.Query{
		Text:     query,
		Language: res.Language,
		Model:    opts.Model,
	}

	fanCtx, cancel := context.WithTimeout(ctx, o.collabTimeout)
	defer cancel()

	answers := make([]*answer.Answer, len(participants))
	errs := make([]error, len(participants))
	g := new(errgroup.Group)
	g.SetLimit(o.maxParallel)
	for i, d := range participants {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					answers[i], errs[i] = nil, &InvocationError{ResponderID: d.ID, Err: &PanicError{Value: r}}
				}
			}()
			answers[i], errs[i] = o.invoke(fanCtx, res.RequestID, d, q)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, d := range participants {
		res.RespondersInvolved = append(res.RespondersInvolved, d.ID)
		if errs[i] != nil {
			o.logf("[collab] %s: %s failed: %v", res.RequestID, d.ID, errs[i])
			res.Failures = append(res.Failures, failureOf(d.ID, errs[i]))
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		res.Contributions = append(res.Contributions, responder.Contribution{
			ResponderID: d.ID,
			Name:        d.DisplayName(),
			Text:        answers[i].Text,
			Sources:     answers[i].Sources,
		})
	}

	if len(res.Contributions) == 0 {
		o.metrics.IncCollaboration(outcomeUnavailable)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.degradeWith(res, fallback.KeyServiceUnavailable, ReasonCanceled, ctxErr)
		}
		return o.degrade(res, fallback.KeyServiceUnavailable, firstErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.logf("[collab] %s: caller gave up before synthesis: %v", res.RequestID, ctxErr)
		res.Answer = unmerged(res.Contributions, res.Language)
		res.FailureReason = ReasonCanceled
		res.FailureDetail = ctxErr.Error()
		o.metrics.IncCollaboration(outcomeUnmerged)
		return res
	}

	merged, err := o.synthesize(ctx, res, query, synthesizerID, opts.Model)
	if err != nil {
		o.logf("[collab] %s: synthesis failed: %v", res.RequestID, err)
		res.Answer = unmerged(res.Contributions, res.Language)
		res.FailureReason = ReasonSynthesisFailure
		res.FailureDetail = err.Error()
		o.metrics.IncCollaboration(outcomeUnmerged)
		return res
	}
	res.Answer = merged
	o.metrics.IncCollaboration(outcomeSynthesized)
	return res
}

// participants resolves ids against the registry, keeping caller order.
func (o *Orchestrator) participants(ids []string) []responder.Descriptor {
	reg := o.router.Registry()
	seen := make(map[string]bool, len(ids))
	var out []responder.Descriptor
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		d, ok := reg.Get(id)
		if !ok || !d.Active {
			o.logf("[collab] skipping %q: unknown or inactive", id)
			continue
		}
		out = append(out, d)
	}
	return out
}

func (o *Orchestrator) synthesize(ctx context.Context, res *Result, query, synthesizerID, model string) (*answer.Answer, error) {
	if synthesizerID == "" {
		synthesizerID = o.synthesizerID
	}
	if o.synthesizer == nil || synthesizerID == "" {
		return nil, fmt.Errorf("%w: no synthesizer configured", ErrSynthesisFailure)
	}
	d, ok := o.router.Registry().Get(synthesizerID)
	if !ok || !d.Active {
		return nil, fmt.Errorf("%w: synthesizer %q is unknown or inactive", ErrSynthesisFailure, synthesizerID)
	}

	req := responder.SynthesisRequest{
		Query:         query,
		Language:      res.Language,
		Model:         model,
		Contributions: res.Contributions,
	}
	ans, err := o.call(ctx, res.RequestID, d.ID, func(ctx context.Context) (*answer.Answer, error) {
		return o.synthesizer.Synthesize(ctx, d, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailure, err)
	}
	res.SelectedResponderID = d.ID
	return ans, nil
}

// unmerged joins contributions in order when no synthesis is available.
func unmerged(contributions []responder.Contribution, lang string) *answer.Answer {
	var b strings.Builder
	var sources []answer.Source
	for i, c := range contributions {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", c.Name, c.Text)
		sources = append(sources, c.Sources...)
	}
	a := answer.New("collaboration", b.String(), "", sources)
	a.Language = lang
	a.Metadata["unmerged"] = "true"
	a.Metadata["contributions"] = fmt.Sprint(len(contributions))
	return a
}
