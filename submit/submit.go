// Package submit sends a prepared document to the signature provider with
// resilience against ambiguous network failures.
//
// The invariant: a transport-layer symptom (reset, hang-up, timeout) proves
// nothing about the remote side, which may have completed the operation.
// Such a failure is never reported as failed; it routes through a recovery
// procedure that checks the provider and the local record for evidence the
// agreement was in fact created. Only an application-layer rejection, an
// HTTP response carrying an error status, is a definitive failure.
//
// The outcome is a sum type, not a boolean: Confirmed (with a verified
// flag), Ambiguous (needs out-of-band verification), or Failed. Callers
// must branch on all three.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkmill/sigprep/idgen"
	"github.com/inkmill/sigprep/provider"
	"github.com/inkmill/sigprep/store"
)

// Status is the terminal state of one logical send.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusAmbiguous Status = "ambiguous"
	StatusFailed    Status = "failed"
)

// Outcome is the tagged result of a send. Verified is meaningful only for
// StatusConfirmed: true when the provider answered or a verify call
// succeeded, false when confirmation was presumed from local evidence.
// Callers who need certainty can re-verify unverified outcomes later.
type Outcome struct {
	Status      Status
	RequestID   string // stable across every retry of this logical send
	AgreementID string // set when Status is Confirmed
	Verified    bool
	Reason      error // cause for Failed, last transport symptom for Ambiguous
}

// AgreementAPI is the slice of the provider client the submitter needs.
type AgreementAPI interface {
	CreateAgreement(ctx context.Context, transientDocID string, recipients []provider.Recipient, name string, opts provider.Options) (*provider.Agreement, error)
	VerifyAgreement(ctx context.Context, agreementID string) (*provider.Agreement, error)
}

// Records is the slice of the document store the submitter needs for
// persistence and ambiguous-outcome recovery.
type Records interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	UpdateStatus(ctx context.Context, id string, status store.Status) error
	MergeMetadata(ctx context.Context, id string, values map[string]string) error
	RecordEvent(ctx context.Context, ev store.SubmissionEvent)
}

// Config configures a Submitter.
type Config struct {
	// MaxAttempts bounds retries of one logical send (default 5).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// RetryDelay is the fixed wait between attempts (default 2s).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	// Timeout is the hard overall deadline raced against the call
	// (default 60s; raise toward 180s for the most resilient path).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// RecoveryTimeout bounds the verify call during recovery (default 15s).
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`

	Logger *slog.Logger    `json:"-" yaml:"-"`
	NewID  idgen.Generator `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("sub_", idgen.Default)
	}
}

// Submitter drives the idle → pending → {confirmed|ambiguous|failed}
// state machine for one document at a time.
type Submitter struct {
	api     AgreementAPI
	records Records
	cfg     Config
}

// New creates a Submitter.
func New(api AgreementAPI, records Records, cfg Config) *Submitter {
	cfg.defaults()
	return &Submitter{api: api, records: records, cfg: cfg}
}

type callResult struct {
	agreement *provider.Agreement
	err       error
}

// Send submits the document's transient upload for signature. The request
// ID is minted once and reused across every internal retry so logs and
// duplicate detection can correlate them. The overall deadline races the
// underlying call; if the deadline wins while a call is still outstanding
// the outcome is ambiguous, never failed: the in-flight request may yet
// be processed remotely. The underlying call is not forcibly aborted.
func (s *Submitter) Send(ctx context.Context, doc *store.Document, transientDocID string, opts provider.Options) Outcome {
	requestID := s.cfg.NewID()
	log := s.cfg.Logger.With("document_id", doc.ID, "request_id", requestID)

	recipients := make([]provider.Recipient, len(doc.Recipients))
	for i, r := range doc.Recipients {
		recipients[i] = provider.Recipient{Email: r.Email, Name: r.Name, Order: r.Order}
	}

	deadline := time.NewTimer(s.cfg.Timeout)
	defer deadline.Stop()

	var lastTransportErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		resultCh := make(chan callResult, 1)
		go func() {
			ag, err := s.api.CreateAgreement(ctx, transientDocID, recipients, doc.Name, opts)
			resultCh <- callResult{agreement: ag, err: err}
		}()

		select {
		case res := <-resultCh:
			switch {
			case res.err == nil:
				return s.confirm(ctx, doc, requestID, res.agreement.ID, true, log)

			case !IsTransportError(res.err):
				// The provider received and rejected the request. Definitive;
				// never retried.
				log.Warn("submit: remote rejected", "attempt", attempt, "error", res.err)
				s.records.RecordEvent(ctx, store.SubmissionEvent{
					DocumentID: doc.ID, RequestID: requestID,
					Action: "send", Outcome: string(StatusFailed),
					Details: res.err.Error(),
				})
				return Outcome{Status: StatusFailed, RequestID: requestID, Reason: res.err}

			default:
				lastTransportErr = res.err
				log.Warn("submit: transport failure", "attempt", attempt,
					"max_attempts", s.cfg.MaxAttempts, "error", res.err)
				if attempt == s.cfg.MaxAttempts {
					return s.recover(ctx, doc, requestID, lastTransportErr, log)
				}
				select {
				case <-time.After(s.cfg.RetryDelay):
				case <-deadline.C:
					return s.recover(ctx, doc, requestID, lastTransportErr, log)
				case <-ctx.Done():
					return s.recover(ctx, doc, requestID, ctx.Err(), log)
				}
			}

		case <-deadline.C:
			// Call still outstanding; the remote side may complete it.
			log.Warn("submit: overall deadline exceeded with call in flight", "attempt", attempt)
			if lastTransportErr == nil {
				lastTransportErr = context.DeadlineExceeded
			}
			return s.recover(ctx, doc, requestID, lastTransportErr, log)

		case <-ctx.Done():
			return s.recover(ctx, doc, requestID, ctx.Err(), log)
		}
	}

	// Unreachable: the loop always returns from its final attempt.
	return s.recover(ctx, doc, requestID, lastTransportErr, log)
}

// confirm persists a definitive success and returns the confirmed outcome.
func (s *Submitter) confirm(ctx context.Context, doc *store.Document, requestID, agreementID string, verified bool, log *slog.Logger) Outcome {
	// Persistence runs even when ctx is done: the send DID happen.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecoveryTimeout)
	defer cancel()

	meta := map[string]string{
		store.MetaSendRequestID: requestID,
	}
	// Status-only presumption carries no agreement ID; never plant an empty
	// one or clobber an ID an earlier attempt recorded.
	if agreementID != "" {
		meta[store.MetaAgreementID] = agreementID
	}
	if !verified {
		meta[store.MetaSendUnverified] = "true"
	}
	if err := s.records.MergeMetadata(pctx, doc.ID, meta); err != nil {
		log.Error("submit: metadata write failed after confirmed send", "error", err)
	}
	if err := s.records.UpdateStatus(pctx, doc.ID, store.StatusSentForSignature); err != nil {
		log.Error("submit: status update failed after confirmed send", "error", err)
	}
	s.records.RecordEvent(pctx, store.SubmissionEvent{
		DocumentID: doc.ID, RequestID: requestID,
		Action: "send", Outcome: string(StatusConfirmed),
		Details: fmt.Sprintf("agreement=%s verified=%t", agreementID, verified),
		Success: true,
	})
	log.Info("submit: confirmed", "agreement_id", agreementID, "verified", verified)
	return Outcome{Status: StatusConfirmed, RequestID: requestID, AgreementID: agreementID, Verified: verified}
}

// recover resolves an ambiguous send. Order of evidence:
//  1. a verify call against the provider, when an agreement ID is on record;
//  2. the local record itself: a sent status or recorded agreement ID means
//     some earlier attempt (possibly this one) succeeded remotely; the
//     outcome is confirmed but explicitly unverified;
//  3. no evidence: the ambiguity stands and is handed to the caller.
func (s *Submitter) recover(ctx context.Context, doc *store.Document, requestID string, cause error, log *slog.Logger) Outcome {
	// The caller's context may already be expired; recovery gets its own.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecoveryTimeout)
	defer cancel()

	fresh, err := s.records.GetDocument(rctx, doc.ID)
	if err != nil || fresh == nil {
		fresh = doc
	}
	agreementID := fresh.Metadata[store.MetaAgreementID]

	verifyAnswered := false
	if agreementID != "" {
		ag, verr := s.api.VerifyAgreement(rctx, agreementID)
		if verr == nil && ag != nil {
			log.Info("submit: recovery verified agreement", "agreement_id", ag.ID)
			s.records.RecordEvent(rctx, store.SubmissionEvent{
				DocumentID: doc.ID, RequestID: requestID,
				Action: "verify", Outcome: string(StatusConfirmed), Success: true,
			})
			return s.confirm(rctx, doc, requestID, ag.ID, true, log)
		}
		if verr != nil {
			log.Warn("submit: recovery verify call failed", "error", verr)
		} else {
			// The provider answered and has no trace of the agreement; the
			// local id is stale evidence and must not drive a presumption.
			verifyAnswered = true
			log.Warn("submit: recovery verify found no agreement", "agreement_id", agreementID)
		}
	}

	// Verification unavailable; fall back to local evidence alone.
	if !verifyAnswered && (agreementID != "" || fresh.Status == store.StatusSentForSignature) {
		log.Warn("submit: presuming sent from local evidence, unverified",
			"agreement_id", agreementID, "status", fresh.Status)
		return s.confirm(rctx, doc, requestID, agreementID, false, log)
	}

	s.records.RecordEvent(rctx, store.SubmissionEvent{
		DocumentID: doc.ID, RequestID: requestID,
		Action: "send", Outcome: string(StatusAmbiguous),
		Details: fmt.Sprintf("%v", cause),
	})
	log.Warn("submit: outcome ambiguous, out-of-band verification required", "cause", cause)
	return Outcome{Status: StatusAmbiguous, RequestID: requestID, Reason: cause}
}
