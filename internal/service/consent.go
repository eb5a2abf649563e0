package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/consent"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/wallet"
)

// SignatureVerifier checks a wallet signature over a message.
type SignatureVerifier func(chain, address, message, signature string) error

// ConsentRequest confirms a patient's signed consent for one trial.
type ConsentRequest struct {
	UserID        string `json:"user_id"`
	TrialID       string `json:"trial_id"`
	AgreementHash string `json:"agreement_hash"`
	Signature     string `json:"signature"`
	TxSignature   string `json:"tx_signature"`
}

// Agreement is the value a wallet signs plus the seeds of its on-chain consent account.
type Agreement struct {
	Hash  string   `json:"hash"`
	Seeds []string `json:"seeds,omitempty"`
}

// ConsentService verifies wallet consent, appends it to the ledger and moves the match record
// to Consent_Signed.
type ConsentService struct {
	logger  *logrus.Logger
	matches domain.MatchStore
	ledger  consent.Store
	verify  SignatureVerifier
}

// NewConsentService uses wallet.Verify when verify is nil.
func NewConsentService(logger *logrus.Logger, matches domain.MatchStore, ledger consent.Store, verify SignatureVerifier) *ConsentService {
	if verify == nil {
		verify = wallet.Verify
	}
	return &ConsentService{logger: logger, matches: matches, ledger: ledger, verify: verify}
}

// Agreement hashes the agreement text for signing.
func (s *ConsentService) Agreement(text, walletAddress string) (*Agreement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("text", "is required", text)
	}
	a := &Agreement{Hash: consent.HashAgreement(text)}
	if w := strings.TrimSpace(walletAddress); w != "" {
		a.Seeds = consent.PDASeeds(w)
	}
	return a, nil
}

// ChainFor infers the wallet family from the address format.
func ChainFor(address string) consent.Chain {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return consent.ChainEVM
	}
	return consent.ChainSolana
}

// Confirm records consent. The user's wallet must have signed the agreement hash.
func (s *ConsentService) Confirm(ctx context.Context, req *ConsentRequest) (*consent.Record, error) {
	ctx, span := tracer.Start(ctx, "ConsentService.Confirm")
	defer span.End()

	if err := validateConsent(req); err != nil {
		return nil, err
	}

	// Step 1: The pairing must exist
	match, err := s.matches.Get(ctx, req.UserID, req.TrialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s/%s: %w", req.UserID, req.TrialID, err)
	}
	if match.EnrollmentStatus == domain.EnrollmentRejected {
		return nil, domain.NewValidationError("trial_id", "match was rejected", req.TrialID)
	}

	// Step 2: Verify the wallet signature over the agreement hash
	chain := ChainFor(req.UserID)
	if err := s.verify(string(chain), req.UserID, req.AgreementHash, req.Signature); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id":  req.UserID,
			"trial_id": req.TrialID,
			"chain":    chain,
		}).WithError(err).Warn("Consent signature rejected")
		return nil, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}

	// Step 3: Append to the ledger, then update enrollment
	rec := &consent.Record{
		UserID:        req.UserID,
		TrialID:       req.TrialID,
		WalletAddress: req.UserID,
		AgreementHash: strings.ToLower(req.AgreementHash),
		Signature:     req.Signature,
		TxSignature:   req.TxSignature,
		Chain:         chain,
	}
	if err := s.ledger.Save(ctx, rec); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) || match.EnrollmentStatus == domain.EnrollmentConsentSigned {
			return nil, fmt.Errorf("failed to record consent: %w", err)
		}
		// A ledger row without a signed enrollment is a retry after a failed update.
		existing, lerr := s.resumable(ctx, rec)
		if lerr != nil {
			return nil, lerr
		}
		s.logger.WithFields(logrus.Fields{
			"user_id":   req.UserID,
			"trial_id":  req.TrialID,
			"ledger_id": existing.ID,
		}).Info("Resuming consent with existing ledger record")
		rec = existing
	}

	if err := s.matches.UpdateEnrollment(ctx, req.UserID, req.TrialID, domain.EnrollmentConsentSigned, rec.TxSignature); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id":  req.UserID,
			"trial_id": req.TrialID,
		}).WithError(err).Error("Consent recorded but enrollment update failed")
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to update enrollment: %v", domain.ErrDataAccess, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"trial_id":  req.TrialID,
		"chain":     chain,
		"ledger_id": rec.ID,
	}).Info("Consent confirmed")
	return rec, nil
}

// resumable returns the stored ledger record when it covers the same agreement as rec.
// A different agreement for the same pair stays a duplicate.
func (s *ConsentService) resumable(ctx context.Context, rec *consent.Record) (*consent.Record, error) {
	existing, err := s.ledger.Get(ctx, rec.UserID, rec.TrialID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: consent ledger changed during confirm", domain.ErrDataAccess)
		}
		return nil, fmt.Errorf("failed to load consent %s/%s: %w", rec.UserID, rec.TrialID, err)
	}
	if existing.AgreementHash != rec.AgreementHash {
		return nil, fmt.Errorf("failed to record consent: consent %s/%s: %w", rec.UserID, rec.TrialID, domain.ErrDuplicate)
	}
	return existing, nil
}

func validateConsent(req *ConsentRequest) error {
	if req == nil {
		return domain.NewValidationError("body", "is required", nil)
	}
	var errs domain.ValidationErrors
	if strings.TrimSpace(req.UserID) == "" {
		errs = append(errs, domain.NewValidationError("user_id", "is required", req.UserID))
	}
	if strings.TrimSpace(req.TrialID) == "" {
		errs = append(errs, domain.NewValidationError("trial_id", "is required", req.TrialID))
	}
	if b, err := hex.DecodeString(req.AgreementHash); err != nil || len(b) != 32 {
		errs = append(errs, domain.NewValidationError("agreement_hash", "must be a hex SHA-256 digest", req.AgreementHash))
	}
	if strings.TrimSpace(req.Signature) == "" {
		errs = append(errs, domain.NewValidationError("signature", "is required", nil))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
